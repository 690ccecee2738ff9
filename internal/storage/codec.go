package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrWong99/tradeledger/internal/trade"
)

// errEmptyFile marks a data file that exists but holds only whitespace.
var errEmptyFile = errors.New("file is empty")

// decoded is the outcome of parsing one namespace file.
type decoded struct {
	ledger    trade.Ledger
	sanitized int
	dropped   []string
}

// decodeLedger parses data as a map of entity identifier to record.
//
// A whitespace-only document or a JSON syntax/type error is returned as an
// error and treated as corruption by the caller. A literal null yields an
// empty ledger. Keys that are not UUIDs are dropped, null values are
// skipped, entries stored without a tier get one, and out-of-range records
// are sanitised. Display names of changed records are recomputed for mode.
func decodeLedger(data []byte, mode trade.DisplayMode) (decoded, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return decoded{}, errEmptyFile
	}

	var raw map[string]*trade.Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return decoded{}, fmt.Errorf("parse json: %w", err)
	}

	out := decoded{ledger: make(trade.Ledger, len(raw))}
	for key, rec := range raw {
		id, err := uuid.Parse(key)
		if err != nil {
			out.dropped = append(out.dropped, key)
			continue
		}
		if rec == nil {
			continue
		}
		rec.EntityID = id
		if rec.Entries == nil {
			rec.Entries = []trade.Entry{}
		}
		tiered := rec.AssignMissingPriorities()
		if !rec.IsValid() {
			rec.Sanitize()
			out.sanitized++
			tiered = true
		}
		if tiered {
			rec.UpdateDisplayName(mode)
		}
		out.ledger[id] = rec
	}
	return out, nil
}

// encodeLedger renders ledger as indented JSON keyed by canonical UUID
// strings. Nil records are omitted.
func encodeLedger(ledger trade.Ledger) ([]byte, error) {
	raw := make(map[string]*trade.Record, len(ledger))
	for id, rec := range ledger {
		if rec == nil {
			continue
		}
		raw[id.String()] = rec
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
