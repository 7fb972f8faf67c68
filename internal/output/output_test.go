package output

import (
	"reflect"
	"testing"
)

func TestTrimFilter(t *testing.T) {
	f := &TrimFilter{}
	input := []string{"  hello    ", " world "}
	expected := []string{"hello", "world"}
	result, err := f.Apply(input)
	if err != nil {
		t.Fatalf("TrimFilter failed: %v", err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("TrimFilter: got %v, want %v", result, expected)
	}
}

func TestFieldsFilter(t *testing.T) {
	f := &FieldsFilter{}
	input := []string{"a b  c", "d"}
	expected := []string{"a", "b", "c", "d"}
	result, err := f.Apply(input)
	if err != nil {
		t.Fatalf("FieldsFilter failed: %v", err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("FieldsFilter: got %v, want %v", result, expected)
	}
}

func TestKeyValueJSONFilter(t *testing.T) {
	f := &KeyValueJSONFilter{}
	input := []string{"cpu: 4", "mem: 8G", "not a pair"}
	result, err := f.Apply(input)
	if err != nil {
		t.Fatalf("KeyValueJSONFilter failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one JSON line, got %v", result)
	}
	for _, want := range []string{`"cpu":"4"`, `"mem":"8G"`} {
		if !contains(result[0], want) {
			t.Errorf("JSON output %q missing %q", result[0], want)
		}
	}
}

func TestChain(t *testing.T) {
	c := NewChain()
	input := []string{" kernel: 6.1 "}
	result, err := c.Apply(input, FilterTrim, FilterKeyValueJSON)
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	expected := []string{`{"kernel":"6.1"}`}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Chain: got %v, want %v", result, expected)
	}
}

func TestChainUnknownFilter(t *testing.T) {
	c := NewChain()
	if _, err := c.Apply([]string{"x"}, "bogus"); err == nil {
		t.Error("expected error for unregistered filter")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
