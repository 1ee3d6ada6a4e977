package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// dateLayout matches domain.DateLayout without importing domain.
const dateLayout = "2006-01-02"

// ComputeRangeID computes a deterministic range_id using SHA256.
// Formula: SHA256(instrument|date|anchor_id)
// Returns hex-encoded hash (64 characters).
func ComputeRangeID(
	instrument string,
	date time.Time,
	anchorID string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		instrument,
		date.Format(dateLayout),
		anchorID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
