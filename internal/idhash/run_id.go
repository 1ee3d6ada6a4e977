package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"breakout-lab/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(name|instrument|anchor_id|train|validation|test|grid|baseline|attempt)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	name string,
	instrument string,
	anchorID string,
	split domain.SplitConfig,
	grid domain.SearchGrid,
	baseline domain.TradeParams,
	attempt int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%d",
		name,
		instrument,
		anchorID,
		split.Train,
		split.Validation,
		split.Test,
		gridKey(grid),
		baseline.Key(),
		attempt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// gridKey renders the grid in index order.
func gridKey(g domain.SearchGrid) string {
	key := string(g.EntryRule)
	for _, p := range g.Combinations() {
		key += ";" + p.Key()
	}
	return key
}

// ComputeDataVersion hashes a bar sequence for reproducibility.
// Returns the first 12 hex characters.
func ComputeDataVersion(bars []domain.PriceBar) string {
	h := sha256.New()
	for _, b := range bars {
		h.Write([]byte(b.Instrument))
		h.Write([]byte(strconv.FormatInt(b.Timestamp.UnixMilli(), 10)))
		h.Write([]byte(strconv.FormatFloat(b.Open, 'g', -1, 64)))
		h.Write([]byte(strconv.FormatFloat(b.High, 'g', -1, 64)))
		h.Write([]byte(strconv.FormatFloat(b.Low, 'g', -1, 64)))
		h.Write([]byte(strconv.FormatFloat(b.Close, 'g', -1, 64)))
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// ShortID encodes the first 8 bytes of a hex id as base58.
// Used as a human-friendly handle in CLI output. Returns the input
// unchanged if it is not valid hex.
func ShortID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil || len(raw) < 8 {
		return hexID
	}
	return base58.Encode(raw[:8])
}
