// Package trade defines the record types kept in a trade ledger: the offers
// captured from a merchant entity, the per-entity aggregate that carries the
// derived display name, and the namespace-scoped ledger that maps entity
// identifiers to records.
//
// Every type in this package is a plain value holder. Nothing here performs
// I/O or synchronisation; callers that share a [Ledger] between goroutines
// must serialise access themselves.
package trade

import (
	"bytes"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisplayMode selects how a [Record] derives its display name from its entries.
type DisplayMode string

const (
	// DisplayFirst keeps only the first captured entry and displays it.
	DisplayFirst DisplayMode = "first"

	// DisplayBest keeps every eligible entry and displays the one with the
	// lowest priority tier. Ties go to the entry captured first.
	DisplayBest DisplayMode = "best"
)

// IsValid reports whether m is a recognised display mode.
func (m DisplayMode) IsValid() bool {
	return m == DisplayFirst || m == DisplayBest
}

// OrDefault returns m, or [DisplayFirst] when m is empty.
func (m DisplayMode) OrDefault() DisplayMode {
	if m == "" {
		return DisplayFirst
	}
	return m
}

// Entry is a single offer observed on a merchant entity.
type Entry struct {
	// Label is the display text of the offered item. It is shown when the
	// entry carries no attribute.
	Label string `json:"itemName,omitempty"`

	// AttributeKey is the stable registry key of the attribute (for example
	// "minecraft:mending"). It drives tier computation and may be empty for
	// records written before keys were stored.
	AttributeKey string `json:"attributeKey,omitempty"`

	// AttributeName is the localised attribute name. Empty when the offered
	// item carries no attribute.
	AttributeName string `json:"attributeName"`

	// AttributeLevel is meaningful only when AttributeName is non-empty.
	AttributeLevel int `json:"attributeLevel"`

	// Cost is the price in resource units.
	Cost int `json:"cost"`

	// Priority is the tier computed by [TierFor] at capture time.
	// Entries without an attribute use [UnrankedPriority].
	Priority int `json:"priority"`
}

// HasAttribute reports whether the entry carries a named attribute.
func (e Entry) HasAttribute() bool {
	return e.AttributeName != ""
}

// DisplayText renders the entry as shown above the entity, for example
// "[12]Mending" or "[38]Sharpness V".
func (e Entry) DisplayText() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(e.Cost))
	b.WriteByte(']')
	if !e.HasAttribute() {
		b.WriteString(e.Label)
		return b.String()
	}
	b.WriteString(e.AttributeName)
	if e.AttributeLevel > 1 {
		b.WriteByte(' ')
		b.WriteString(roman(e.AttributeLevel))
	}
	return b.String()
}

var romanNumerals = [...]string{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"}

// roman returns the Roman numeral for 1..10 and the decimal form otherwise.
func roman(n int) string {
	if n <= 0 || n >= len(romanNumerals) {
		return strconv.Itoa(n)
	}
	return romanNumerals[n]
}

// Record aggregates the entries captured for one entity.
type Record struct {
	// EntityID duplicates the ledger key.
	EntityID uuid.UUID `json:"entityId"`

	// DisplayName is derived from Entries by [Record.UpdateDisplayName].
	// Empty means nothing is shown.
	DisplayName string `json:"displayName,omitempty"`

	// Role is the entity's role at capture time (e.g. "librarian").
	// It is kept in memory only.
	Role string `json:"-"`

	// LastUpdated is the in-memory time of the last display-name update.
	LastUpdated time.Time `json:"-"`

	Entries []Entry `json:"entries"`
}

// NewRecord returns an empty record for id.
func NewRecord(id uuid.UUID, role string) *Record {
	return &Record{EntityID: id, Role: role, Entries: []Entry{}}
}

// AddEntry appends e according to mode. In [DisplayFirst] mode a record
// holds at most one entry; later entries are ignored and AddEntry reports
// false.
func (r *Record) AddEntry(mode DisplayMode, e Entry) bool {
	if mode.OrDefault() == DisplayFirst && len(r.Entries) > 0 {
		return false
	}
	r.Entries = append(r.Entries, e)
	return true
}

// Best returns the entry the display name is derived from. In
// [DisplayFirst] mode that is the first entry; in [DisplayBest] mode it is
// the entry with the numerically lowest priority, ties going to the earliest.
// Entries without a tier rank after every tier.
func (r *Record) Best(mode DisplayMode) (Entry, bool) {
	if len(r.Entries) == 0 {
		return Entry{}, false
	}
	best := r.Entries[0]
	if mode.OrDefault() == DisplayFirst {
		return best, true
	}
	for _, e := range r.Entries[1:] {
		if e.rank() < best.rank() {
			best = e
		}
	}
	return best, true
}

// TrimToFirst drops every entry after the first, leaving the record in the
// shape [DisplayFirst] mode keeps. It reports whether entries were dropped.
func (r *Record) TrimToFirst() bool {
	if len(r.Entries) <= 1 {
		return false
	}
	r.Entries = r.Entries[:1:1]
	return true
}

// UpdateDisplayName recomputes DisplayName from Entries.
func (r *Record) UpdateDisplayName(mode DisplayMode) {
	r.LastUpdated = time.Now()
	best, ok := r.Best(mode)
	if !ok {
		r.DisplayName = ""
		return
	}
	r.DisplayName = best.DisplayText()
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Entries = append([]Entry(nil), r.Entries...)
	if c.Entries == nil {
		c.Entries = []Entry{}
	}
	return &c
}

// Ledger maps entity identifiers to their records. One ledger exists per
// namespace.
type Ledger map[uuid.UUID]*Record

// Clone returns a deep copy of l.
func (l Ledger) Clone() Ledger {
	c := make(Ledger, len(l))
	for id, rec := range l {
		c[id] = rec.Clone()
	}
	return c
}

// IDs returns the ledger keys in ascending order.
func (l Ledger) IDs() []uuid.UUID {
	ids := slices.Collect(maps.Keys(l))
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}
