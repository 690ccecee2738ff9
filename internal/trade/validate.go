package trade

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Value ranges enforced by [Entry.IsValid] and [Entry.Sanitize].
const (
	MinCost             = 1
	MaxCost             = 64
	MinLevel            = 1
	MaxLevel            = 255
	MaxAttributeNameLen = 100
)

// IsValid reports whether every field of e lies within its allowed range.
func (e Entry) IsValid() bool {
	return e.Validate() == nil
}

// Validate returns a joined error listing every range violation in e, or nil.
func (e Entry) Validate() error {
	var errs []error
	if e.Cost < MinCost || e.Cost > MaxCost {
		errs = append(errs, fmt.Errorf("cost %d is out of range [%d, %d]", e.Cost, MinCost, MaxCost))
	}
	if e.HasAttribute() {
		if e.AttributeLevel < MinLevel || e.AttributeLevel > MaxLevel {
			errs = append(errs, fmt.Errorf("attribute level %d is out of range [%d, %d]", e.AttributeLevel, MinLevel, MaxLevel))
		}
		if n := utf8.RuneCountInString(e.AttributeName); n > MaxAttributeNameLen {
			errs = append(errs, fmt.Errorf("attribute name is %d characters; limit is %d", n, MaxAttributeNameLen))
		}
	}
	return errors.Join(errs...)
}

// Sanitize clamps e into its allowed ranges in place and reports whether
// anything changed. The attribute level is only clamped when a name is set.
func (e *Entry) Sanitize() bool {
	changed := false
	if c := clamp(e.Cost, MinCost, MaxCost); c != e.Cost {
		e.Cost = c
		changed = true
	}
	if e.HasAttribute() {
		if l := clamp(e.AttributeLevel, MinLevel, MaxLevel); l != e.AttributeLevel {
			e.AttributeLevel = l
			changed = true
		}
		if utf8.RuneCountInString(e.AttributeName) > MaxAttributeNameLen {
			e.AttributeName = string([]rune(e.AttributeName)[:MaxAttributeNameLen])
			changed = true
		}
	}
	return changed
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// IsValid reports whether every entry of r is valid. A record with no
// entries is valid.
func (r *Record) IsValid() bool {
	for _, e := range r.Entries {
		if !e.IsValid() {
			return false
		}
	}
	return true
}

// Sanitize sanitises every entry of r in place and reports whether any
// entry changed. The display name is left untouched; callers recompute it.
func (r *Record) Sanitize() bool {
	changed := false
	for i := range r.Entries {
		if r.Entries[i].Sanitize() {
			changed = true
		}
	}
	return changed
}

// ValidationKind classifies a [ValidationResult].
type ValidationKind int

const (
	// ValidationEmpty means there was nothing to validate.
	ValidationEmpty ValidationKind = iota
	// ValidationAllValid means every record passed.
	ValidationAllValid
	// ValidationPartial means at least one record failed.
	ValidationPartial
)

// String returns a short lower-case name for k.
func (k ValidationKind) String() string {
	switch k {
	case ValidationEmpty:
		return "empty"
	case ValidationAllValid:
		return "valid"
	case ValidationPartial:
		return "partial"
	}
	return fmt.Sprintf("ValidationKind(%d)", int(k))
}

// ValidationResult summarises a validation pass over a ledger.
type ValidationResult struct {
	Kind    ValidationKind
	Total   int
	Valid   int
	Invalid int
}

// OK reports whether no invalid records were found. An empty ledger is not
// considered OK because there was nothing to check.
func (r ValidationResult) OK() bool {
	return r.Kind == ValidationAllValid
}

// Message returns a one-line human-readable summary.
func (r ValidationResult) Message() string {
	switch r.Kind {
	case ValidationEmpty:
		return "No data to validate."
	case ValidationAllValid:
		return fmt.Sprintf("All %d records are valid.", r.Total)
	default:
		return fmt.Sprintf("Found %d invalid entries out of %d records.", r.Invalid, r.Total)
	}
}

// Validate classifies every record in l without modifying it.
func (l Ledger) Validate() ValidationResult {
	if len(l) == 0 {
		return ValidationResult{Kind: ValidationEmpty}
	}
	res := ValidationResult{Total: len(l)}
	for _, rec := range l {
		if rec != nil && rec.IsValid() {
			res.Valid++
		} else {
			res.Invalid++
		}
	}
	if res.Invalid == 0 {
		res.Kind = ValidationAllValid
	} else {
		res.Kind = ValidationPartial
	}
	return res
}

// InvalidIDs returns the identifiers of invalid records in ascending order.
func (l Ledger) InvalidIDs() []string {
	var out []string
	for _, id := range l.IDs() {
		if rec := l[id]; rec == nil || !rec.IsValid() {
			out = append(out, id.String())
		}
	}
	return out
}
