package eligibility

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"graph-allocopt/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSubgraphs() []*domain.SubgraphDeployment {
	return []*domain.SubgraphDeployment{
		{ID: "QmAAA", SignalledTokens: dec("100"), StakedTokens: dec("1000")},
		{ID: "QmBBB", SignalledTokens: dec("50"), StakedTokens: dec("500")},
		{ID: "QmCCC", SignalledTokens: dec("10"), StakedTokens: dec("0")},
		{ID: "QmDDD", SignalledTokens: dec("0"), StakedTokens: dec("200")},
	}
}

func testIndexer() *domain.Indexer {
	return &domain.Indexer{
		Address:      "0xabc",
		StakedTokens: dec("1000"),
		Allocations: []domain.Allocation{
			{DeploymentID: "QmBBB", AllocatedTokens: dec("50")},
			{DeploymentID: "QmDDD", AllocatedTokens: dec("100")},
		},
	}
}

func TestFilter_NoConstraints(t *testing.T) {
	res, err := Filter(testSubgraphs(), testIndexer(), &domain.ConstraintSet{}, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	if len(res.Eligible) != 4 {
		t.Errorf("eligible count: got %d, want 4", len(res.Eligible))
	}
	if !res.AvailableStake.Equal(dec("1000")) {
		t.Errorf("available stake: got %s, want 1000", res.AvailableStake)
	}
}

func TestFilter_Whitelist(t *testing.T) {
	cs := &domain.ConstraintSet{Whitelist: []string{"QmAAA", "QmCCC"}}

	res, err := Filter(testSubgraphs(), testIndexer(), cs, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	if len(res.Eligible) != 2 {
		t.Fatalf("eligible count: got %d, want 2", len(res.Eligible))
	}
	if res.Eligible[0].ID != "QmAAA" || res.Eligible[1].ID != "QmCCC" {
		t.Errorf("eligible = %s, %s", res.Eligible[0].ID, res.Eligible[1].ID)
	}
}

func TestFilter_Blacklist(t *testing.T) {
	cs := &domain.ConstraintSet{Blacklist: []string{"QmAAA"}}

	res, err := Filter(testSubgraphs(), testIndexer(), cs, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	for _, sg := range res.Eligible {
		if sg.ID == "QmAAA" {
			t.Error("blacklisted deployment is eligible")
		}
	}
}

func TestFilter_PinnedRemovedAndRecorded(t *testing.T) {
	cs := &domain.ConstraintSet{Pinnedlist: []string{"QmBBB"}}

	res, err := Filter(testSubgraphs(), testIndexer(), cs, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	for _, sg := range res.Eligible {
		if sg.ID == "QmBBB" {
			t.Error("pinned deployment left in decision set")
		}
	}
	if got := res.PinnedAmounts["QmBBB"]; !got.Equal(dec("50")) {
		t.Errorf("pinned amount: got %s, want 50", got)
	}
	// 1000 - 50 pinned
	if !res.AvailableStake.Equal(dec("950")) {
		t.Errorf("available stake: got %s, want 950", res.AvailableStake)
	}
}

func TestFilter_FrozenExcludedEntirely(t *testing.T) {
	cs := &domain.ConstraintSet{Frozenlist: []string{"QmDDD"}}

	res, err := Filter(testSubgraphs(), testIndexer(), cs, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	for _, sg := range res.Eligible {
		if sg.ID == "QmDDD" {
			t.Error("frozen deployment is eligible")
		}
	}
	if !res.FrozenStake.Equal(dec("100")) {
		t.Errorf("frozen stake: got %s, want 100", res.FrozenStake)
	}
	if !res.AvailableStake.Equal(dec("900")) {
		t.Errorf("available stake: got %s, want 900", res.AvailableStake)
	}
}

func TestFilter_FrozenWinsOverPinned(t *testing.T) {
	cs := &domain.ConstraintSet{
		Pinnedlist: []string{"QmDDD"},
		Frozenlist: []string{"QmDDD"},
	}

	res, err := Filter(testSubgraphs(), testIndexer(), cs, decimal.Zero)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	if _, ok := res.PinnedAmounts["QmDDD"]; ok {
		t.Error("frozen deployment recorded as pinned")
	}
	if !res.FrozenStake.Equal(dec("100")) {
		t.Errorf("frozen stake: got %s, want 100", res.FrozenStake)
	}
}

func TestFilter_MinSignal(t *testing.T) {
	res, err := Filter(testSubgraphs(), testIndexer(), &domain.ConstraintSet{}, dec("50"))
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}

	if len(res.Eligible) != 2 {
		t.Fatalf("eligible count: got %d, want 2", len(res.Eligible))
	}
	for _, sg := range res.Eligible {
		if sg.SignalledTokens.LessThan(dec("50")) {
			t.Errorf("deployment %s below signal floor is eligible", sg.ID)
		}
	}
}

func TestFilter_InsufficientStake(t *testing.T) {
	indexer := &domain.Indexer{
		Address:      "0xabc",
		StakedTokens: dec("150"),
		Allocations: []domain.Allocation{
			{DeploymentID: "QmBBB", AllocatedTokens: dec("50")},
			{DeploymentID: "QmDDD", AllocatedTokens: dec("100")},
		},
	}
	cs := &domain.ConstraintSet{
		Pinnedlist: []string{"QmBBB"},
		Frozenlist: []string{"QmDDD"},
	}

	_, err := Filter(testSubgraphs(), indexer, cs, decimal.Zero)
	if !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("want ErrInsufficientStake, got %v", err)
	}
}
