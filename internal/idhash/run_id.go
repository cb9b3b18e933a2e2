package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"graph-allocopt/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(indexer|epoch|mode|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	indexerAddress string,
	epoch int64,
	mode domain.OptMode,
	createdAt int64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		indexerAddress,
		epoch,
		string(mode),
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
