package segment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Defaults is the rule set a fresh campaign view starts with.
func Defaults() RuleSet {
	return RuleSet{
		Logic:        LogicAnd,
		Spend:        Predicate{Operator: OpGreater, Value: 10000},
		Visits:       Predicate{Operator: OpLess, Value: 3},
		InactiveDays: Predicate{Operator: OpGreater, Value: 90},
	}
}

// Predicate returns the predicate for f. ok is false for unrecognized fields.
func (rs RuleSet) Predicate(f Field) (p Predicate, ok bool) {
	switch f {
	case FieldSpend:
		return rs.Spend, true
	case FieldVisits:
		return rs.Visits, true
	case FieldInactiveDays:
		return rs.InactiveDays, true
	}
	return Predicate{}, false
}

// WithPredicate returns a copy of rs with the update applied to field f only.
// Unrecognized fields leave the copy unchanged. Values are not validated here.
func (rs RuleSet) WithPredicate(f Field, u PredicateUpdate) RuleSet {
	p, ok := rs.Predicate(f)
	if !ok {
		return rs
	}
	if u.Operator != nil {
		p.Operator = *u.Operator
	}
	if u.Value != nil {
		p.Value = *u.Value
	}
	switch f {
	case FieldSpend:
		rs.Spend = p
	case FieldVisits:
		rs.Visits = p
	case FieldInactiveDays:
		rs.InactiveDays = p
	}
	return rs
}

func (rs RuleSet) WithLogic(l Logic) RuleSet {
	rs.Logic = l
	return rs
}

// Serialize produces the plain structure sent as `segmentRules`.
func (rs RuleSet) Serialize() map[string]any {
	out := map[string]any{"logic": string(rs.Logic)}
	for _, f := range Fields() {
		p, _ := rs.Predicate(f)
		out[string(f)] = map[string]any{
			"operator": string(p.Operator),
			"value":    p.Value,
		}
	}
	return out
}

// Validate checks rs against the predicate grammar: a known logic, one of
// the three operators, and a finite, non-negative threshold per field.
func (rs RuleSet) Validate() error {
	if !rs.Logic.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("logic must be AND or OR, got %q", rs.Logic)}
	}
	for _, f := range Fields() {
		p, _ := rs.Predicate(f)
		if err := validatePredicate(f, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicate(f Field, p Predicate) error {
	if !p.Operator.Valid() {
		return &ValidationError{Field: f, Reason: fmt.Sprintf("operator must be >, < or =, got %q", p.Operator)}
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return &ValidationError{Field: f, Reason: "value must be a number"}
	}
	if p.Value < 0 {
		return &ValidationError{Field: f, Reason: "value must not be negative"}
	}
	return nil
}

// Describe renders the audience in the form the message generator expects,
// e.g. "Spend > 10000, Visits < 3, Inactive Days > 90".
func (rs RuleSet) Describe() string {
	parts := make([]string, 0, len(Fields()))
	for _, f := range Fields() {
		p, _ := rs.Predicate(f)
		parts = append(parts, fmt.Sprintf("%s %s %s", f.Label(), p.Operator, FormatValue(p.Value)))
	}
	return strings.Join(parts, ", ")
}

// ParseValue coerces user input into a threshold. Anything that is not a
// number yields NaN, which Validate rejects.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func FormatValue(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "segment: " + e.Reason
	}
	return fmt.Sprintf("segment: %s: %s", e.Field, e.Reason)
}
