package segment

// Field names a customer attribute the remote service segments on.
type Field string

const (
	FieldSpend        Field = "spend"
	FieldVisits       Field = "visits"
	FieldInactiveDays Field = "inactiveDays"
)

// Fields lists the recognized fields in display order.
func Fields() []Field { return []Field{FieldSpend, FieldVisits, FieldInactiveDays} }

// Known reports whether f is one of the recognized fields.
func (f Field) Known() bool {
	switch f {
	case FieldSpend, FieldVisits, FieldInactiveDays:
		return true
	}
	return false
}

// Label is the human name used in audience descriptions.
func (f Field) Label() string {
	switch f {
	case FieldSpend:
		return "Spend"
	case FieldVisits:
		return "Visits"
	case FieldInactiveDays:
		return "Inactive Days"
	}
	return string(f)
}

// Operator compares a customer attribute with a threshold.
type Operator string

const (
	OpGreater Operator = ">"
	OpLess    Operator = "<"
	OpEqual   Operator = "="
)

func (o Operator) Valid() bool { return o == OpGreater || o == OpLess || o == OpEqual }

// Logic combines field predicates.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

func (l Logic) Valid() bool { return l == LogicAnd || l == LogicOr }

type Predicate struct {
	Operator Operator `json:"operator" yaml:"operator"`
	Value    float64  `json:"value" yaml:"value"`
}

// PredicateUpdate is a partial predicate; nil members keep the current value.
type PredicateUpdate struct {
	Operator *Operator `json:"operator,omitempty"`
	Value    *float64  `json:"value,omitempty"`
}

// RuleSet is the audience-selection criteria held by a campaign view.
// It is a value: transitions return a new RuleSet and never touch the receiver.
type RuleSet struct {
	Logic        Logic     `json:"logic" yaml:"logic"`
	Spend        Predicate `json:"spend" yaml:"spend"`
	Visits       Predicate `json:"visits" yaml:"visits"`
	InactiveDays Predicate `json:"inactiveDays" yaml:"inactiveDays"`
}
