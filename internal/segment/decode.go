package segment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DecodeKind classifies why an external rule set was rejected.
type DecodeKind string

const (
	KindMalformed    DecodeKind = "malformed"
	KindUnknownField DecodeKind = "unknown-field"
	KindMissingField DecodeKind = "missing-field"
	KindBadOperator  DecodeKind = "bad-operator"
	KindBadValue     DecodeKind = "bad-value"
	KindBadLogic     DecodeKind = "bad-logic"
)

type DecodeError struct {
	Kind  DecodeKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("segment: ")
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode validates a rule set received from outside (the AI parser, a rules
// file) and returns it only when every field conforms to the grammar.
// A missing logic key defaults to AND.
func Decode(data []byte) (RuleSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return RuleSet{}, &DecodeError{Kind: KindMalformed, Err: err}
	}
	if raw == nil {
		return RuleSet{}, &DecodeError{Kind: KindMalformed, Err: fmt.Errorf("rules must be an object")}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != "logic" && !Field(k).Known() {
			return RuleSet{}, &DecodeError{Kind: KindUnknownField, Field: k}
		}
	}

	rs := RuleSet{Logic: LogicAnd}
	if msg, ok := raw["logic"]; ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return RuleSet{}, &DecodeError{Kind: KindBadLogic, Field: "logic", Err: err}
		}
		l := Logic(strings.ToUpper(strings.TrimSpace(s)))
		if !l.Valid() {
			return RuleSet{}, &DecodeError{Kind: KindBadLogic, Field: "logic", Err: fmt.Errorf("got %q", s)}
		}
		rs.Logic = l
	}

	for _, f := range Fields() {
		msg, ok := raw[string(f)]
		if !ok {
			return RuleSet{}, &DecodeError{Kind: KindMissingField, Field: string(f)}
		}
		p, err := decodePredicate(f, msg)
		if err != nil {
			return RuleSet{}, err
		}
		rs = rs.WithPredicate(f, PredicateUpdate{Operator: &p.Operator, Value: &p.Value})
	}
	return rs, nil
}

func decodePredicate(f Field, msg json.RawMessage) (Predicate, error) {
	var raw struct {
		Operator *string        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Predicate{}, &DecodeError{Kind: KindMalformed, Field: string(f), Err: err}
	}
	if raw.Operator == nil {
		return Predicate{}, &DecodeError{Kind: KindBadOperator, Field: string(f), Err: fmt.Errorf("operator missing")}
	}
	op := Operator(strings.TrimSpace(*raw.Operator))
	if !op.Valid() {
		return Predicate{}, &DecodeError{Kind: KindBadOperator, Field: string(f), Err: fmt.Errorf("got %q", *raw.Operator)}
	}
	v, err := decodeValue(raw.Value)
	if err != nil {
		return Predicate{}, &DecodeError{Kind: KindBadValue, Field: string(f), Err: err}
	}
	p := Predicate{Operator: op, Value: v}
	if err := validatePredicate(f, p); err != nil {
		return Predicate{}, &DecodeError{Kind: KindBadValue, Field: string(f), Err: err}
	}
	return p, nil
}

// decodeValue accepts a JSON number or a numeric string.
func decodeValue(msg json.RawMessage) (float64, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return 0, fmt.Errorf("value missing")
	}
	var n float64
	if err := json.Unmarshal(msg, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, fmt.Errorf("value must be a number")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", s)
	}
	return n, nil
}
