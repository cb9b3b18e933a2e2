package domain

// ConstraintSet holds the four deployment preference lists.
// Semantics:
//   - Whitelist: if non-empty, only listed deployments are eligible.
//   - Blacklist: listed deployments never receive new allocation.
//   - Pinnedlist: the indexer's current allocation on listed deployments is
//     preserved untouched; pinned stake still counts against the budget.
//   - Frozenlist: listed deployments and the stake currently on them are
//     excluded from the optimization entirely.
type ConstraintSet struct {
	Whitelist  []string
	Blacklist  []string
	Pinnedlist []string
	Frozenlist []string
}

// Whitelisted reports whether id passes the whitelist (always true when the
// whitelist is empty).
func (c *ConstraintSet) Whitelisted(id string) bool {
	if len(c.Whitelist) == 0 {
		return true
	}
	return contains(c.Whitelist, id)
}

// Blacklisted reports whether id is on the blacklist.
func (c *ConstraintSet) Blacklisted(id string) bool { return contains(c.Blacklist, id) }

// Pinned reports whether id is on the pinnedlist.
func (c *ConstraintSet) Pinned(id string) bool { return contains(c.Pinnedlist, id) }

// Frozen reports whether id is on the frozenlist.
func (c *ConstraintSet) Frozen(id string) bool { return contains(c.Frozenlist, id) }

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
