package engine

import (
	"strings"
	"testing"

	"github.com/wippyai/view-engine/errors"
)

const (
	sumReduceSource   = `function(keys, values, rereduce) { return sum(values); }`
	countReduceSource = `function(keys, values, rereduce) {
		return rereduce ? sum(values) : values.length;
	}`
)

func jsonRows(items ...string) [][]byte {
	out := make([][]byte, len(items))
	for i, s := range items {
		out[i] = []byte(s)
	}
	return out
}

func TestReduce_Sum(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	out, err := ctx.Reduce(
		jsonRows(`"a"`, `"b"`, `"c"`),
		jsonRows(`1`, `2`, `3`),
	)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d reductions, want 1", len(out))
	}
	if string(out[0]) != "6" {
		t.Errorf("reduction = %s, want 6", out[0])
	}
}

func TestReduce_AllFunctionsInOrder(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource, countReduceSource)
	defer ctx.Close()

	out, err := ctx.Reduce(
		jsonRows(`"a"`, `"b"`, `"c"`),
		jsonRows(`1`, `2`, `3`),
	)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d reductions, want 2", len(out))
	}
	if string(out[0]) != "6" {
		t.Errorf("reduction 0 = %s, want 6", out[0])
	}
	if string(out[1]) != "3" {
		t.Errorf("reduction 1 = %s, want 3", out[1])
	}
}

func TestReduce_AllOrNothing(t *testing.T) {
	ctx := newTestContext(t,
		sumReduceSource,
		`function(keys, values, rereduce) { throw new Error("reduce boom"); }`,
	)
	defer ctx.Close()

	out, err := ctx.Reduce(jsonRows(`"a"`), jsonRows(`1`))
	assertKind(t, err, errors.KindScript)
	if out != nil {
		t.Errorf("reductions = %v, want none on failure", out)
	}
	if !strings.Contains(err.Error(), "reduce boom") {
		t.Errorf("error = %v, should carry the exception text", err)
	}
}

func TestReduce_ArityMismatch(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	tests := []struct {
		name   string
		keys   [][]byte
		values [][]byte
	}{
		{"more keys", jsonRows(`"a"`, `"b"`), jsonRows(`1`)},
		{"more values", jsonRows(`"a"`), jsonRows(`1`, `2`)},
		{"no keys", nil, jsonRows(`1`, `2`)},
		{"no values", jsonRows(`"a"`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.Reduce(tt.keys, tt.values)
			assertKind(t, err, errors.KindArity)

			_, err = ctx.ReduceOne(0, tt.keys, tt.values)
			assertKind(t, err, errors.KindArity)
		})
	}
}

func TestReduce_EmptyRows(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	out, err := ctx.Reduce(nil, nil)
	if err != nil {
		t.Fatalf("reduce over no rows: %v", err)
	}
	if string(out[0]) != "0" {
		t.Errorf("reduction = %s, want 0", out[0])
	}
}

func TestReduce_UndefinedResult(t *testing.T) {
	ctx := newTestContext(t, `function(keys, values, rereduce) {}`)
	defer ctx.Close()

	_, err := ctx.Reduce(jsonRows(`"a"`), jsonRows(`1`))
	assertKind(t, err, errors.KindScript)
	if !strings.Contains(err.Error(), "returned no value") {
		t.Errorf("error = %v, should flag the missing return", err)
	}
}

func TestReduce_NullResultIsValid(t *testing.T) {
	ctx := newTestContext(t, `function(keys, values, rereduce) { return null; }`)
	defer ctx.Close()

	out, err := ctx.Reduce(jsonRows(`"a"`), jsonRows(`1`))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(out[0]) != "null" {
		t.Errorf("reduction = %s, want null", out[0])
	}
}

func TestReduce_EmitForbidden(t *testing.T) {
	ctx := newTestContext(t, `function(keys, values, rereduce) { emit(1, 2); return 0; }`)
	defer ctx.Close()

	_, err := ctx.Reduce(jsonRows(`"a"`), jsonRows(`1`))
	assertKind(t, err, errors.KindScript)
	if !strings.Contains(err.Error(), "map function") {
		t.Errorf("error = %v, should explain emit is map-only", err)
	}
}

func TestReduce_BadValueJSON(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	_, err := ctx.Reduce(jsonRows(`"a"`, `"b"`), jsonRows(`1`, `{oops`))
	assertKind(t, err, errors.KindParse)
	if !strings.Contains(err.Error(), "value 1") {
		t.Errorf("error = %v, should name the bad element", err)
	}
}

func TestReduceOne_ByIndex(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource, countReduceSource)
	defer ctx.Close()

	out, err := ctx.ReduceOne(1, jsonRows(`"a"`, `"b"`, `"c"`), jsonRows(`5`, `6`, `7`))
	if err != nil {
		t.Fatalf("reduce one: %v", err)
	}
	if string(out) != "3" {
		t.Errorf("reduction = %s, want 3", out)
	}
}

func TestReduceOne_IndexOutOfRange(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	if _, err := ctx.ReduceOne(1, nil, nil); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("index 1 error = %v, want invalid_input", err)
	}
	if _, err := ctx.ReduceOne(-1, nil, nil); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("index -1 error = %v, want invalid_input", err)
	}
}

func TestRereduce_Sum(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	out, err := ctx.Rereduce(0, jsonRows(`6`, `4`))
	if err != nil {
		t.Fatalf("rereduce: %v", err)
	}
	if string(out) != "10" {
		t.Errorf("rereduction = %s, want 10", out)
	}

	// sum is associative and commutative, so the partials' order must not
	// change the folded value.
	reordered, err := ctx.Rereduce(0, jsonRows(`4`, `6`))
	if err != nil {
		t.Fatalf("rereduce reordered: %v", err)
	}
	if string(reordered) != string(out) {
		t.Errorf("reordered rereduction = %s, want %s", reordered, out)
	}
}

func TestRereduce_FlagAndNullKeys(t *testing.T) {
	ctx := newTestContext(t, `function(keys, values, rereduce) {
		return [rereduce, keys === null];
	}`)
	defer ctx.Close()

	out, err := ctx.Rereduce(0, jsonRows(`1`))
	if err != nil {
		t.Fatalf("rereduce: %v", err)
	}
	if string(out) != "[true,true]" {
		t.Errorf("rereduction = %s, want [true,true]", out)
	}

	// The plain reduce path sees real keys and a false flag.
	res, err := ctx.Reduce(jsonRows(`"k"`), jsonRows(`1`))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(res[0]) != "[false,false]" {
		t.Errorf("reduction = %s, want [false,false]", res[0])
	}
}

func TestRereduce_CountTotals(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource, countReduceSource)
	defer ctx.Close()

	// Per-batch counts 3 and 2 re-reduce to the total 5.
	out, err := ctx.Rereduce(1, jsonRows(`3`, `2`))
	if err != nil {
		t.Fatalf("rereduce: %v", err)
	}
	if string(out) != "5" {
		t.Errorf("rereduction = %s, want 5", out)
	}
}

func TestRereduce_IndexOutOfRange(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	if _, err := ctx.Rereduce(3, jsonRows(`1`)); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("index 3 error = %v, want invalid_input", err)
	}
}

func TestRereduce_BadReductionJSON(t *testing.T) {
	ctx := newTestContext(t, sumReduceSource)
	defer ctx.Close()

	_, err := ctx.Rereduce(0, jsonRows(`6`, `<bad>`))
	assertKind(t, err, errors.KindParse)
	if !strings.Contains(err.Error(), "reduction 1") {
		t.Errorf("error = %v, should name the bad element", err)
	}
}

func TestReduce_KeysVisible(t *testing.T) {
	ctx := newTestContext(t, `function(keys, values, rereduce) { return keys[0]; }`)
	defer ctx.Close()

	out, err := ctx.Reduce(jsonRows(`["k", "id1"]`), jsonRows(`1`))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if string(out[0]) != `["k","id1"]` {
		t.Errorf("reduction = %s, want [\"k\",\"id1\"]", out[0])
	}
}
