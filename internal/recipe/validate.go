package recipe

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxCount is the largest servings, minutes or step order a recipe may hold;
// stored recipes keep them in 32-bit columns.
const MaxCount = math.MaxInt32

// ErrOutOfRange is returned for numbers larger than MaxCount
var ErrOutOfRange = errors.New("out of range")

// Violation is one broken constraint, addressed by a JSON-style field path
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is the full list of broken constraints for a draft
type Violations []Violation

// Err returns a *ValidationError when there is at least one violation
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}

// ValidationError wraps every violation found in a draft
type ValidationError struct {
	Violations Violations
}

func (e *ValidationError) Error() string {
	first := e.Violations[0]
	if len(e.Violations) == 1 {
		return fmt.Sprintf("invalid recipe: %s: %s", first.Field, first.Message)
	}
	return fmt.Sprintf("invalid recipe: %s: %s (and %d more)", first.Field, first.Message, len(e.Violations)-1)
}

// Has reports whether a violation exists for the given field path
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Validate checks a draft against the structural rules and returns every
// violation found. It never mutates the draft.
func Validate(d *Draft) Violations {
	var out Violations
	add := func(field, format string, args ...any) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Title) == "" {
		add("title", "is required")
	}

	checkNonNegative := func(field string, v *int) {
		switch {
		case v == nil:
		case *v < 0:
			add(field, "must be a non-negative integer, got %d", *v)
		case *v > MaxCount:
			add(field, "must not exceed %d, got %d", MaxCount, *v)
		}
	}
	checkNonNegative("prep_time_minutes", d.PrepTimeMinutes)
	checkNonNegative("cook_time_minutes", d.CookTimeMinutes)
	checkNonNegative("servings", d.Servings)

	if len(d.Components) == 0 {
		add("components", "must contain at least one component")
	}

	for ci, c := range d.Components {
		prefix := fmt.Sprintf("components[%d]", ci)

		if len(c.Ingredients) == 0 {
			add(prefix+".ingredients", "must contain at least one ingredient")
		}
		for ii, ing := range c.Ingredients {
			field := fmt.Sprintf("%s.ingredients[%d]", prefix, ii)
			if strings.TrimSpace(ing.Name) == "" {
				add(field+".name", "is required")
			}
			if ing.Quantity != nil {
				q := *ing.Quantity
				switch {
				case math.IsNaN(q) || math.IsInf(q, 0):
					add(field+".quantity", "must be a finite number")
				case q < 0:
					add(field+".quantity", "must not be negative, got %g", q)
				}
			}
		}

		if len(c.Steps) == 0 {
			add(prefix+".steps", "must contain at least one step")
		}
		seen := make(map[int]int, len(c.Steps))
		for si, s := range c.Steps {
			field := fmt.Sprintf("%s.steps[%d]", prefix, si)
			if s.Order <= 0 {
				add(field+".order", "must be a positive integer, got %d", s.Order)
			} else if s.Order > MaxCount {
				add(field+".order", "must not exceed %d, got %d", MaxCount, s.Order)
			} else if first, dup := seen[s.Order]; dup {
				add(field+".order", "duplicates order %d of %s.steps[%d]", s.Order, prefix, first)
			} else {
				seen[s.Order] = si
			}
			if strings.TrimSpace(s.Instruction) == "" {
				add(field+".instruction", "is required")
			}
			checkNonNegative(field+".duration_minutes", s.DurationMinutes)
		}
	}

	return out
}
