package trade

import "strings"

// Priority tiers. Lower values are displayed first.
const (
	TierTop    = 1
	TierHigh   = 2
	TierMedium = 3
	TierLow    = 4

	// UnrankedPriority is assigned to entries that carry no attribute.
	UnrankedPriority = 100
)

// highTierMinLevel lists attributes that reach [TierHigh] at or above the
// given level.
var highTierMinLevel = map[string]int{
	"sharpness":  5,
	"efficiency": 5,
	"power":      5,
	"protection": 4,
	"unbreaking": 3,
}

// mediumTierMinLevel lists attributes that reach [TierMedium] at or above the
// given level. A minimum of 0 means any level qualifies.
var mediumTierMinLevel = map[string]int{
	"silk_touch":  0,
	"infinity":    0,
	"fortune":     3,
	"looting":     3,
	"fire_aspect": 2,
}

// TierFor returns the priority tier for an attribute key at the given level.
// A registry namespace prefix such as "minecraft:" is ignored.
func TierFor(key string, level int) int {
	key = NormalizeKey(key)
	if key == "mending" {
		return TierTop
	}
	if need, ok := highTierMinLevel[key]; ok && level >= need {
		return TierHigh
	}
	if need, ok := mediumTierMinLevel[key]; ok && level >= need {
		return TierMedium
	}
	return TierLow
}

// NormalizeKey lower-cases key and strips any "namespace:" prefix.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	return key
}

// AssignPriority fills in e.Priority from its attribute. Entries without an
// attribute get [UnrankedPriority]; entries with a name but no key get
// [TierLow].
func (e *Entry) AssignPriority() {
	switch {
	case !e.HasAttribute():
		e.Priority = UnrankedPriority
	case e.AttributeKey == "":
		e.Priority = TierLow
	default:
		e.Priority = TierFor(e.AttributeKey, e.AttributeLevel)
	}
}

// rank is the priority used for ordering. A missing tier sorts last.
func (e Entry) rank() int {
	if e.Priority <= 0 {
		return UnrankedPriority
	}
	return e.Priority
}

// AssignMissingPriorities fills in the tier of entries that carry none, as
// in files written before tiers were stored. It reports whether any entry
// changed.
func (r *Record) AssignMissingPriorities() bool {
	changed := false
	for i := range r.Entries {
		if r.Entries[i].Priority <= 0 {
			r.Entries[i].AssignPriority()
			changed = true
		}
	}
	return changed
}
