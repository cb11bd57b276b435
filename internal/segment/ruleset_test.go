package segment

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestWithPredicate_OnlyTargetChanges(t *testing.T) {
	base := Defaults()
	for _, f := range Fields() {
		t.Run(string(f), func(t *testing.T) {
			got := base.WithPredicate(f, PredicateUpdate{Operator: ptr(OpEqual), Value: ptr(7.5)})

			p, ok := got.Predicate(f)
			require.True(t, ok)
			assert.Equal(t, Predicate{Operator: OpEqual, Value: 7.5}, p)
			assert.Equal(t, base.Logic, got.Logic)
			for _, other := range Fields() {
				if other == f {
					continue
				}
				want, _ := base.Predicate(other)
				have, _ := got.Predicate(other)
				assert.Equal(t, want, have, "field %s changed", other)
			}
			assert.Equal(t, Defaults(), base, "receiver mutated")
		})
	}
}

func TestWithPredicate_Partial(t *testing.T) {
	rs := Defaults().WithPredicate(FieldVisits, PredicateUpdate{Value: ptr(12.0)})
	assert.Equal(t, Predicate{Operator: OpLess, Value: 12}, rs.Visits)

	rs = rs.WithPredicate(FieldVisits, PredicateUpdate{Operator: ptr(OpGreater)})
	assert.Equal(t, Predicate{Operator: OpGreater, Value: 12}, rs.Visits)
}

func TestWithPredicate_UnknownField(t *testing.T) {
	rs := Defaults().WithPredicate(Field("age"), PredicateUpdate{Value: ptr(30.0)})
	assert.Equal(t, Defaults(), rs)
}

func TestWithLogic(t *testing.T) {
	rs := Defaults().WithLogic(LogicOr)
	assert.Equal(t, LogicOr, rs.Logic)
	assert.Equal(t, Defaults().Spend, rs.Spend)
}

func TestSerialize_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rs   RuleSet
	}{
		{"defaults", Defaults()},
		{"or with equality", Defaults().WithLogic(LogicOr).
			WithPredicate(FieldSpend, PredicateUpdate{Operator: ptr(OpEqual), Value: ptr(2500.25)})},
		{"zeros", RuleSet{
			Logic:        LogicAnd,
			Spend:        Predicate{Operator: OpLess, Value: 0},
			Visits:       Predicate{Operator: OpEqual, Value: 0},
			InactiveDays: Predicate{Operator: OpGreater, Value: 0},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.rs.Serialize())
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.rs, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rs      RuleSet
		wantErr bool
		field   Field
	}{
		{"defaults", Defaults(), false, ""},
		{"bad logic", Defaults().WithLogic("XOR"), true, ""},
		{"bad operator", Defaults().WithPredicate(FieldSpend, PredicateUpdate{Operator: ptr(Operator(">="))}), true, FieldSpend},
		{"nan value", Defaults().WithPredicate(FieldVisits, PredicateUpdate{Value: ptr(ParseValue("abc"))}), true, FieldVisits},
		{"inf value", Defaults().WithPredicate(FieldVisits, PredicateUpdate{Value: ptr(math.Inf(1))}), true, FieldVisits},
		{"negative value", Defaults().WithPredicate(FieldInactiveDays, PredicateUpdate{Value: ptr(-1.0)}), true, FieldInactiveDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rs.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Spend > 10000, Visits < 3, Inactive Days > 90", Defaults().Describe())

	rs := Defaults().WithPredicate(FieldSpend, PredicateUpdate{Operator: ptr(OpEqual), Value: ptr(99.5)})
	assert.Equal(t, "Spend = 99.5, Visits < 3, Inactive Days > 90", rs.Describe())
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 42.0, ParseValue("42"))
	assert.Equal(t, 0.0, ParseValue(""))
	assert.Equal(t, -3.5, ParseValue(" -3.5 "))
	assert.True(t, math.IsNaN(ParseValue("lots")))
}

func BenchmarkWithPredicate(b *testing.B) {
	rs := Defaults()
	v := 5000.0
	for i := 0; i < b.N; i++ {
		rs = rs.WithPredicate(FieldSpend, PredicateUpdate{Value: &v})
		_ = rs.Serialize()
	}
}
