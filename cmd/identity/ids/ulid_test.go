package ids

import (
	"testing"
	"time"
)

func TestNewULID_SortableAndValid(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := NewULID(t0)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(t0.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	if len(a) != 26 || !Valid(a) || !Valid(b) {
		t.Fatalf("expected valid ULIDs, got %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("expected lexicographic order by time: %q >= %q", a, b)
	}
}

func TestValid_Rejects(t *testing.T) {
	for _, s := range []string{"", "abc", "01HZZZZZZZZZZZZZZZZZZZZZZZZ", "8ZZZZZZZZZZZZZZZZZZZZZZZZZ", "01HZZZZZZZZZZZZZZZZZZZZZZ!"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
