package envvar

import (
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("FOLIO_X_STRING", "  value ")
	if got := String("FOLIO_X_STRING", "d"); got != "value" {
		t.Fatalf("String=%q", got)
	}
	t.Setenv("FOLIO_X_STRING", "   ")
	if got := String("FOLIO_X_STRING", "d"); got != "d" {
		t.Fatalf("blank String=%q", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("FOLIO_X_BOOL", "true")
	if !Bool("FOLIO_X_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("FOLIO_X_BOOL", "maybe")
	if !Bool("FOLIO_X_BOOL", true) {
		t.Fatalf("expected default for unparsable value")
	}
}

func TestNumbers(t *testing.T) {
	t.Setenv("FOLIO_X_INT", "42")
	if got := Int("FOLIO_X_INT", 1); got != 42 {
		t.Fatalf("Int=%d", got)
	}
	if got := Int64("FOLIO_X_INT", 1); got != 42 {
		t.Fatalf("Int64=%d", got)
	}

	t.Setenv("FOLIO_X_INT", "0")
	if got := Int("FOLIO_X_INT", 7); got != 7 {
		t.Fatalf("Int(0)=%d, want default", got)
	}
	if got := Int32("FOLIO_X_INT", 7); got != 0 {
		t.Fatalf("Int32(0)=%d, want 0", got)
	}

	t.Setenv("FOLIO_X_INT", "-3")
	if got := Int32("FOLIO_X_INT", 7); got != 7 {
		t.Fatalf("Int32(-3)=%d, want default", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("FOLIO_X_DUR", "90s")
	if got := Duration("FOLIO_X_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration=%v", got)
	}
	t.Setenv("FOLIO_X_DUR", "-1s")
	if got := Duration("FOLIO_X_DUR", time.Second); got != time.Second {
		t.Fatalf("negative Duration=%v", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("FOLIO_X_LIST", " a, ,b ,c")
	if got := List("FOLIO_X_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("List=%v", got)
	}
	t.Setenv("FOLIO_X_LIST", "")
	if got := List("FOLIO_X_LIST", []string{"d"}); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("List default=%v", got)
	}
}
