package session

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"github.com/MrWong99/tradeledger/internal/trade"
)

// Match is one result of [Manager.Find].
type Match struct {
	EntityID uuid.UUID
	Entry    trade.Entry
	Score    float64
}

// Find searches the attribute names and keys of every entry in the ledger.
// Matches are ordered by score, then priority tier, then cost, then entity
// ID. An entity contributes one match per matching entry.
func (m *Manager) Find(query string) []Match {
	var out []Match
	for _, id := range m.ledger.IDs() {
		rec := m.ledger[id]
		for _, e := range rec.Entries {
			if !e.HasAttribute() {
				continue
			}
			score, ok := m.scoreEntry(query, e)
			if !ok {
				continue
			}
			out = append(out, Match{EntityID: id, Entry: e, Score: score})
		}
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Entry.Priority, b.Entry.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Entry.Cost, b.Entry.Cost)
	})
	return out
}

func (m *Manager) scoreEntry(query string, e trade.Entry) (float64, bool) {
	best, accepted := 0.0, false
	for _, text := range []string{e.AttributeName, trade.NormalizeKey(e.AttributeKey)} {
		if text == "" {
			continue
		}
		score, _, ok := m.matcher.Score(query, text)
		if ok && score > best {
			best, accepted = score, true
		}
	}
	return best, accepted
}
