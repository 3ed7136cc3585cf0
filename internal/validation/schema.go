// Package validation checks untrusted client payloads against declarative
// schemas before they reach the registries.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
)

// Kind is the JSON type an entry expects.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
	KindArray
)

// Entry describes one allowed key.
type Entry struct {
	Key      string
	Kind     Kind
	Required bool
	// Check runs before type checks; false is a violation.
	Check func(value any) bool

	// Number constraints.
	Min, Max       *float64
	DisallowFloats bool

	// String constraints.
	Pattern *regexp.Regexp

	// Options restricts strings, or every array item, to a fixed set.
	Options []string
	// ItemKind restricts array items; nil means any.
	ItemKind *Kind
}

// Schema is an ordered list of entries.
type Schema []Entry

func (s Schema) lookup(key string) (Entry, bool) {
	for _, entry := range s {
		if entry.Key == key {
			return entry, true
		}
	}
	return Entry{}, false
}

// Result lists every violation found; an empty list means the payload passed.
type Result struct {
	Violations []string
}

// Failed reports whether any violation was recorded.
func (r Result) Failed() bool { return len(r.Violations) > 0 }

// ValidateJSON decodes raw as an object and validates it.
func (s Schema) ValidateJSON(raw []byte) Result {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return Result{Violations: []string{"Expected object"}}
	}
	return s.Validate(data)
}

// Validate checks data against the schema. Keys are visited in sorted order so
// the violation list is stable.
func (s Schema) Validate(data map[string]any) Result {
	var violations []string
	found := make(map[string]bool, len(data))

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]
		entry, ok := s.lookup(key)
		if !ok {
			violations = append(violations, "Unknown in schema: "+key)
			continue
		}
		found[key] = true
		if violation := entry.check(value); violation != "" {
			violations = append(violations, violation)
		}
	}

	for _, entry := range s {
		if entry.Required && !found[entry.Key] {
			violations = append(violations, "Required keys missing")
			break
		}
	}
	return Result{Violations: violations}
}

func (e Entry) check(value any) string {
	if e.Check != nil && !e.Check(value) {
		return "Validator function failed for: " + e.Key
	}

	switch e.Kind {
	case KindString:
		str, ok := value.(string)
		if !ok {
			return "Primitive type invalid for: " + e.Key
		}
		if e.Pattern != nil && !e.Pattern.MatchString(str) {
			return "Pattern does not match for: " + e.Key
		}
		if len(e.Options) > 0 && !slices.Contains(e.Options, str) {
			return "Value not included in array options for: " + e.Key
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return "Primitive type invalid for: " + e.Key
		}
	case KindNumber:
		num, ok := value.(float64)
		if !ok {
			return "Primitive type invalid for: " + e.Key
		}
		tooSmall := e.Min != nil && num < *e.Min
		tooLarge := e.Max != nil && num > *e.Max
		badFloat := e.DisallowFloats && num != math.Trunc(num)
		if tooSmall || tooLarge || badFloat {
			return "Number is too large, too small or cannot be a float for: " + e.Key
		}
	case KindArray:
		items, ok := value.([]any)
		if !ok {
			return "Expected array for: " + e.Key
		}
		for _, item := range items {
			if !e.itemAllowed(item) {
				return "Value is not an option or invalid for: " + e.Key
			}
		}
	default:
		return fmt.Sprintf("Primitive type invalid for: %s", e.Key)
	}
	return ""
}

func (e Entry) itemAllowed(item any) bool {
	if e.ItemKind != nil {
		switch *e.ItemKind {
		case KindString:
			if _, ok := item.(string); !ok {
				return false
			}
		case KindBool:
			if _, ok := item.(bool); !ok {
				return false
			}
		case KindNumber:
			if _, ok := item.(float64); !ok {
				return false
			}
		default:
			return false
		}
	}
	if len(e.Options) > 0 {
		str, ok := item.(string)
		return ok && slices.Contains(e.Options, str)
	}
	return true
}

func bound(v float64) *float64 { return &v }

func kind(k Kind) *Kind { return &k }
