// Package deployment converts subgraph deployment identifiers between their
// on-chain bytes32 form and the base58 CIDv0 form ("Qm...") used off-chain.
package deployment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidID is returned for identifiers in neither recognized form.
var ErrInvalidID = errors.New("invalid deployment id")

// sha256 multihash prefix: function code 0x12, digest length 0x20.
var multihashPrefix = []byte{0x12, 0x20}

const digestLen = 32

// ToIPFS converts a bytes32 hex identifier ("0x" + 64 hex chars) to its
// base58 CIDv0 form. Inputs already in CIDv0 form pass through validated.
func ToIPFS(id string) (string, error) {
	if strings.HasPrefix(id, "Qm") {
		if _, err := digestFromIPFS(id); err != nil {
			return "", err
		}
		return id, nil
	}

	digest, err := digestFromHex(id)
	if err != nil {
		return "", err
	}

	buf := make([]byte, 0, len(multihashPrefix)+digestLen)
	buf = append(buf, multihashPrefix...)
	buf = append(buf, digest...)
	return base58.Encode(buf), nil
}

// ToHex converts a base58 CIDv0 identifier to its bytes32 hex form
// ("0x" + 64 lowercase hex chars). Inputs already in hex form pass through
// validated and lowercased.
func ToHex(id string) (string, error) {
	if strings.HasPrefix(id, "0x") {
		digest, err := digestFromHex(id)
		if err != nil {
			return "", err
		}
		return "0x" + hex.EncodeToString(digest), nil
	}

	digest, err := digestFromIPFS(id)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(digest), nil
}

// Valid reports whether id is a well-formed deployment identifier in either
// form.
func Valid(id string) bool {
	_, err := ToHex(id)
	return err == nil
}

func digestFromHex(id string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.ToLower(id), "0x")
	digest, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidID, id, err)
	}
	if len(digest) != digestLen {
		return nil, fmt.Errorf("%w: %q: digest is %d bytes, want %d", ErrInvalidID, id, len(digest), digestLen)
	}
	return digest, nil
}

func digestFromIPFS(id string) ([]byte, error) {
	decoded, err := base58.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidID, id, err)
	}
	if len(decoded) != len(multihashPrefix)+digestLen ||
		decoded[0] != multihashPrefix[0] || decoded[1] != multihashPrefix[1] {
		return nil, fmt.Errorf("%w: %q: not a sha256 CIDv0 multihash", ErrInvalidID, id)
	}
	return decoded[len(multihashPrefix):], nil
}
