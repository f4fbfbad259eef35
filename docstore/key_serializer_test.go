package docstore

import (
	"strings"
	"testing"
)

func TestQuerySerializer_BasicValues(t *testing.T) {
	s := newQuerySerializer()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "nil"},
		{"string", "hello", "hello"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"float", 3.14, "3.14"},
		{"nil pointer", (*int)(nil), "nil"},
		{"nil slice", []string(nil), "slice:nil"},
		{"nil map", map[string]int(nil), "map:nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.serializeValue(tt.in)
			if got != tt.want {
				t.Errorf("serializeValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuerySerializer_PointerDereference(t *testing.T) {
	s := newQuerySerializer()

	v := 7
	if got := s.serializeValue(&v); got != "7" {
		t.Errorf("serializeValue(&7) = %q, want %q", got, "7")
	}
}

func TestQuerySerializer_Slices(t *testing.T) {
	s := newQuerySerializer()

	got := s.serializeValue([]string{"a", "b"})
	want := "slice[2]:{a,b}"
	if got != want {
		t.Errorf("serializeValue() = %q, want %q", got, want)
	}

	nested := s.serializeValue([][]int{{1}, {2, 3}})
	if !strings.HasPrefix(nested, "slice[2]:{slice[1]") {
		t.Errorf("nested slice not serialized recursively: %q", nested)
	}
}

func TestQuerySerializer_StructFields(t *testing.T) {
	s := newQuerySerializer()

	type criteria struct {
		Class  string
		Year   int
		hidden string
	}

	got := s.serializeValue(criteria{Class: "c1", Year: 2026, hidden: "x"})
	want := "struct:{Class:c1,Year:2026}"
	if got != want {
		t.Errorf("serializeValue() = %q, want %q", got, want)
	}
}

func TestQuerySerializer_KeyJoining(t *testing.T) {
	s := newQuerySerializer()

	if got := s.serializeKey("students"); got != "students" {
		t.Errorf("serializeKey with no segments = %q, want %q", got, "students")
	}

	got := s.serializeKey("students", "a", "b")
	want := strings.Join([]string{"students", "a", "b"}, keySeparator)
	if got != want {
		t.Errorf("serializeKey() = %q, want %q", got, want)
	}
}
