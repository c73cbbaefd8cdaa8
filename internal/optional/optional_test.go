package optional

import (
	"encoding/json"
	"testing"
)

func TestNonEmpty(t *testing.T) {
	if NonEmpty("").IsSet() {
		t.Error(`NonEmpty("") should be unset`)
	}
	v, ok := NonEmpty("x").Get()
	if !ok || v != "x" {
		t.Errorf(`NonEmpty("x") = (%q, %v), want ("x", true)`, v, ok)
	}
}

func TestOrElse(t *testing.T) {
	if got := None[int]().OrElse(7); got != 7 {
		t.Errorf("None.OrElse(7) = %d, want 7", got)
	}
	if got := Of(3).OrElse(7); got != 3 {
		t.Errorf("Of(3).OrElse(7) = %d, want 3", got)
	}
}

func TestUnmarshalJSON(t *testing.T) {
	var body struct {
		Name  Value[string] `json:"name"`
		Cycle Value[int]    `json:"cycle"`
		URL   Value[string] `json:"url"`
	}
	if err := json.Unmarshal([]byte(`{"name":"Ana","url":null}`), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if name, ok := body.Name.Get(); !ok || name != "Ana" {
		t.Errorf("Name = (%q, %v), want (Ana, true)", name, ok)
	}
	if body.Cycle.IsSet() {
		t.Error("absent Cycle should be unset")
	}
	if body.URL.IsSet() {
		t.Error("null URL should be unset")
	}
}

func TestUnmarshalJSON_TypeMismatch(t *testing.T) {
	var v Value[int]
	if err := json.Unmarshal([]byte(`"five"`), &v); err == nil {
		t.Fatal("Unmarshal() should fail for a string into Value[int]")
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value[string] `json:"a"`
		B Value[string] `json:"b"`
	}{A: Of("x")})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"a":"x","b":null}` {
		t.Errorf("Marshal() = %s", data)
	}
}
