package wire_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"dball/internal/wire"
)

func TestOperationJSONForms(t *testing.T) {
	cases := []struct {
		op   wire.Operation
		want string
	}{
		{wire.GetCurrentState{}, `"GetCurrentState"`},
		{wire.Shutdown{}, `"Shutdown"`},
		{wire.UpdateRecordsForYear{Year: 2024}, `{"UpdateRecordsForYear":2024}`},
		{wire.UpdateRecordsByPeriodList{Periods: []string{"2024001", "2024002"}}, `{"UpdateRecordsByPeriodList":["2024001","2024002"]}`},
	}
	for _, tc := range cases {
		raw, err := wire.MarshalOperation(tc.op)
		if err != nil {
			t.Fatalf("MarshalOperation(%s): %v", tc.op.Name(), err)
		}
		if string(raw) != tc.want {
			t.Fatalf("MarshalOperation(%s) = %s, want %s", tc.op.Name(), raw, tc.want)
		}
		back, err := wire.UnmarshalOperation(raw)
		if err != nil {
			t.Fatalf("UnmarshalOperation(%s): %v", raw, err)
		}
		if !reflect.DeepEqual(back, tc.op) {
			t.Fatalf("round trip mismatch: %#v vs %#v", back, tc.op)
		}
	}
}

func TestEveryOperationNameRoundTrips(t *testing.T) {
	for _, name := range wire.OperationNames() {
		args := []string(nil)
		switch name {
		case wire.OpUpdateRecordsForYear:
			args = []string{"2023"}
		case wire.OpUpdateRecordsByPeriodList:
			args = []string{"2023001"}
		}
		op, err := wire.ParseOperation(string(name), args)
		if err != nil {
			t.Fatalf("ParseOperation(%s): %v", name, err)
		}
		raw, err := wire.MarshalOperation(op)
		if err != nil {
			t.Fatalf("MarshalOperation(%s): %v", name, err)
		}
		back, err := wire.UnmarshalOperation(raw)
		if err != nil {
			t.Fatalf("UnmarshalOperation(%s): %v", raw, err)
		}
		if back.Name() != name {
			t.Fatalf("name changed: %s -> %s", name, back.Name())
		}
		if _, unknown := back.(wire.UnknownOperation); unknown {
			t.Fatalf("%s decoded as unknown", name)
		}
	}
}

func TestUnknownOperationDecodes(t *testing.T) {
	op, err := wire.UnmarshalOperation([]byte(`"FetchMoonPhase"`))
	if err != nil {
		t.Fatalf("UnmarshalOperation: %v", err)
	}
	unknown, ok := op.(wire.UnknownOperation)
	if !ok || unknown.Name() != "FetchMoonPhase" {
		t.Fatalf("expected UnknownOperation, got %#v", op)
	}

	op, err = wire.UnmarshalOperation([]byte(`{"FetchMoonPhase":{"phase":3}}`))
	if err != nil {
		t.Fatalf("UnmarshalOperation: %v", err)
	}
	unknown, ok = op.(wire.UnknownOperation)
	if !ok || string(unknown.Params) != `{"phase":3}` {
		t.Fatalf("expected params to survive, got %#v", op)
	}
}

func TestMalformedOperationParams(t *testing.T) {
	inputs := []string{
		`{"UpdateRecordsForYear":"soon"}`,
		`{"UpdateRecordsByPeriodList":7}`,
		`"UpdateRecordsForYear"`,
		`{"GetCurrentState":1}`,
		`{"A":1,"B":2}`,
		`42`,
	}
	for _, input := range inputs {
		if _, err := wire.UnmarshalOperation([]byte(input)); !errors.Is(err, wire.ErrMalformedOperation) {
			t.Fatalf("UnmarshalOperation(%s): expected ErrMalformedOperation, got %v", input, err)
		}
	}
}

func TestKindJSON(t *testing.T) {
	raw, err := json.Marshal(wire.RequestKind(wire.UpdateRecordsForYear{Year: 2021}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"Request":{"UpdateRecordsForYear":2021}}` {
		t.Fatalf("unexpected request kind JSON %s", raw)
	}
	var k wire.Kind
	if err := json.Unmarshal([]byte(`"Hello"`), &k); err != nil || k.Type != wire.KindHello {
		t.Fatalf("Unmarshal Hello: %v %#v", err, k)
	}
	if err := json.Unmarshal([]byte(`"Goodbye"`), &k); !errors.Is(err, wire.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestParseOperation(t *testing.T) {
	op, err := wire.ParseOperation("updaterecordsforyear", []string{"2024"})
	if err != nil {
		t.Fatalf("ParseOperation: %v", err)
	}
	if op != (wire.UpdateRecordsForYear{Year: 2024}) {
		t.Fatalf("unexpected op %#v", op)
	}
	op, err = wire.ParseOperation("UpdateRecordsByPeriodList", []string{"2024001,2024002", "2024003"})
	if err != nil {
		t.Fatalf("ParseOperation: %v", err)
	}
	list := op.(wire.UpdateRecordsByPeriodList)
	if len(list.Periods) != 3 {
		t.Fatalf("expected 3 periods, got %v", list.Periods)
	}
	if _, err := wire.ParseOperation("UpdateRecordsForYear", []string{"abc"}); err == nil {
		t.Fatalf("expected invalid year error")
	}
	if _, err := wire.ParseOperation("GetCurrentState", []string{"extra"}); err == nil {
		t.Fatalf("expected extra argument error")
	}
	if _, err := wire.ParseOperation("Nope", nil); err == nil {
		t.Fatalf("expected unknown operation error")
	}
}

func TestSubscribeWants(t *testing.T) {
	all := wire.SubscribePayload{}
	if !all.Wants(wire.EventAppStateChange) {
		t.Fatalf("empty subscription should want everything")
	}
	narrow := wire.SubscribePayload{Events: []wire.EventType{wire.EventAPIStatus}}
	if narrow.Wants(wire.EventAppStateChange) {
		t.Fatalf("narrow subscription should not want AppStateChange")
	}
}
