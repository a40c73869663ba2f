package ids

import (
	"testing"
	"time"
)

func TestNew_SortsByTime(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a, err := New(t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(t0.Add(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected lengths: %d %d", len(a), len(b))
	}
	if a >= b {
		t.Fatalf("expected %q < %q", a, b)
	}
}

func TestValid(t *testing.T) {
	id, err := New(time.Time{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		in   string
		want bool
	}{
		{in: id, want: true},
		{in: "", want: false},
		{in: "not-a-ulid", want: false},
		{in: "01HZZZZZZZZZZZZZZZZZZZZZZU", want: false},
	}
	for _, tc := range cases {
		if got := Valid(tc.in); got != tc.want {
			t.Fatalf("Valid(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}
