package segment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	const valid = `{"logic":"OR","spend":{"operator":">","value":500},"visits":{"operator":"<","value":"2"},"inactiveDays":{"operator":"=","value":30}}`

	got, err := Decode([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, RuleSet{
		Logic:        LogicOr,
		Spend:        Predicate{Operator: OpGreater, Value: 500},
		Visits:       Predicate{Operator: OpLess, Value: 2},
		InactiveDays: Predicate{Operator: OpEqual, Value: 30},
	}, got)
}

func TestDecode_DefaultsLogic(t *testing.T) {
	got, err := Decode([]byte(`{"spend":{"operator":">","value":1},"visits":{"operator":">","value":1},"inactiveDays":{"operator":">","value":1}}`))
	require.NoError(t, err)
	assert.Equal(t, LogicAnd, got.Logic)
}

func TestDecode_Rejects(t *testing.T) {
	const rest = `"visits":{"operator":"<","value":3},"inactiveDays":{"operator":">","value":90}`
	tests := []struct {
		name  string
		in    string
		kind  DecodeKind
		field string
	}{
		{"not json", `{`, KindMalformed, ""},
		{"array", `[1,2]`, KindMalformed, ""},
		{"null", `null`, KindMalformed, ""},
		{"unknown field", `{"age":{"operator":">","value":1},"spend":{"operator":">","value":1},` + rest + `}`, KindUnknownField, "age"},
		{"missing field", `{"logic":"AND",` + rest + `}`, KindMissingField, "spend"},
		{"bad logic", `{"logic":"XOR","spend":{"operator":">","value":1},` + rest + `}`, KindBadLogic, "logic"},
		{"logic not string", `{"logic":1,"spend":{"operator":">","value":1},` + rest + `}`, KindBadLogic, "logic"},
		{"no operator", `{"spend":{"value":1},` + rest + `}`, KindBadOperator, "spend"},
		{"bad operator", `{"spend":{"operator":">=","value":1},` + rest + `}`, KindBadOperator, "spend"},
		{"text value", `{"spend":{"operator":">","value":"lots"},` + rest + `}`, KindBadValue, "spend"},
		{"null value", `{"spend":{"operator":">","value":null},` + rest + `}`, KindBadValue, "spend"},
		{"negative value", `{"spend":{"operator":">","value":-5},` + rest + `}`, KindBadValue, "spend"},
		{"predicate not object", `{"spend":5,` + rest + `}`, KindMalformed, "spend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			var derr *DecodeError
			require.True(t, errors.As(err, &derr), "got %v", err)
			assert.Equal(t, tt.kind, derr.Kind)
			assert.Equal(t, tt.field, derr.Field)
		})
	}
}
