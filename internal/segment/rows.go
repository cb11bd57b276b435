package segment

import "fmt"

// Row is one line of the generic rule builder. Logic joins the row to the
// one before it and is ignored on the first row.
type Row struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
	Logic    Logic    `json:"logic,omitempty"`
}

// RuleRows is an ordered list of rows. Like RuleSet, every transition
// returns a new list.
type RuleRows []Row

// NewRow is the row the builder appends by default.
func NewRow() Row { return Row{Field: FieldSpend, Operator: OpGreater, Logic: LogicAnd} }

// Rows lists the set in builder form, one row per field, joined by the
// set's logic.
func (rs RuleSet) Rows() RuleRows {
	var rr RuleRows
	for _, f := range Fields() {
		p, _ := rs.Predicate(f)
		rr = rr.Add(Row{Field: f, Operator: p.Operator, Value: p.Value, Logic: rs.Logic})
	}
	return rr
}

func (rr RuleRows) Add(r Row) RuleRows {
	out := make(RuleRows, 0, len(rr)+1)
	out = append(out, rr...)
	if len(out) == 0 {
		r.Logic = ""
	} else if r.Logic == "" {
		r.Logic = LogicAnd
	}
	return append(out, r)
}

// Remove drops row i. Out-of-range indexes return an unchanged copy.
func (rr RuleRows) Remove(i int) RuleRows {
	out := make(RuleRows, 0, len(rr))
	for j, r := range rr {
		if j != i {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		out[0].Logic = ""
	}
	return out
}

// Update replaces row i. The first row never keeps a logic value.
func (rr RuleRows) Update(i int, r Row) RuleRows {
	out := append(RuleRows(nil), rr...)
	if i < 0 || i >= len(out) {
		return out
	}
	if i == 0 {
		r.Logic = ""
	}
	out[i] = r
	return out
}

// SetLogic sets the combinator joining row i (i > 0) to its predecessor.
func (rr RuleRows) SetLogic(i int, l Logic) RuleRows {
	out := append(RuleRows(nil), rr...)
	if i <= 0 || i >= len(out) {
		return out
	}
	out[i].Logic = l
	return out
}

func (rr RuleRows) Validate() error {
	if len(rr) == 0 {
		return &ValidationError{Reason: "at least one rule row is required"}
	}
	for i, r := range rr {
		if !r.Field.Known() {
			return &ValidationError{Field: r.Field, Reason: fmt.Sprintf("row %d: unknown field", i)}
		}
		if err := validatePredicate(r.Field, Predicate{Operator: r.Operator, Value: r.Value}); err != nil {
			return err
		}
		if i > 0 && !r.Logic.Valid() {
			return &ValidationError{Field: r.Field, Reason: fmt.Sprintf("row %d: logic must be AND or OR", i)}
		}
	}
	return nil
}

// RuleSet folds the rows onto base. A later row for a field replaces an
// earlier one, and fields without a row keep base's predicate. A rule set
// has one combinator, so every joined row must carry the same logic.
func (rr RuleRows) RuleSet(base RuleSet) (RuleSet, error) {
	if err := rr.Validate(); err != nil {
		return RuleSet{}, err
	}
	out := base
	for i, r := range rr {
		switch {
		case i == 1:
			out = out.WithLogic(r.Logic)
		case i > 1 && r.Logic != out.Logic:
			return RuleSet{}, &ValidationError{Field: r.Field, Reason: fmt.Sprintf("row %d: rows must share one logic", i)}
		}
		op, v := r.Operator, r.Value
		out = out.WithPredicate(r.Field, PredicateUpdate{Operator: &op, Value: &v})
	}
	return out, nil
}

func (rr RuleRows) Serialize() []map[string]any {
	out := make([]map[string]any, 0, len(rr))
	for i, r := range rr {
		m := map[string]any{
			"field":    string(r.Field),
			"operator": string(r.Operator),
			"value":    r.Value,
		}
		if i > 0 {
			m["logic"] = string(r.Logic)
		}
		out = append(out, m)
	}
	return out
}
