package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(range_id|entry_rule|stop_mode|target_multiple|filter_threshold)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	rangeID string,
	entryRule string,
	stopMode string,
	targetMultiple float64,
	filterThreshold float64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%g|%g",
		rangeID,
		entryRule,
		stopMode,
		targetMultiple,
		filterThreshold,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
