package syncfab

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestLogbookLenGrowsUntilCapacity(t *testing.T) {
	l := NewSyncLogbook(3)
	for i := 0; i < 2; i++ {
		l.Record(LogEntry{Op: OpSignal, Name: "a", Handle: vk.NullSemaphore})
	}
	if got := l.Len(); got != 2 {
		t.Fatalf("expected len 2, got %d", got)
	}
}

func TestLogbookEvictsOldestOnceFull(t *testing.T) {
	l := NewSyncLogbook(2)
	l.Record(LogEntry{Op: OpSignalFromHost, Name: "first"})
	l.Record(LogEntry{Op: OpWait, Name: "second"})
	l.Record(LogEntry{Op: OpSignal, Name: "third"})

	if got := l.Len(); got != 2 {
		t.Fatalf("expected capacity-bounded len 2, got %d", got)
	}
	dump := l.Dump()
	if len(dump) != 2 || dump[0].Name != "second" || dump[1].Name != "third" {
		t.Fatalf("expected [second, third] after eviction, got %+v", dump)
	}
}

func TestLogbookDumpPreservesChronologicalOrderBeforeWrap(t *testing.T) {
	l := NewSyncLogbook(4)
	names := []string{"a", "b", "c"}
	for _, n := range names {
		l.Record(LogEntry{Op: OpImageAcquire, Name: n})
	}
	dump := l.Dump()
	if len(dump) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(dump))
	}
	for i, n := range names {
		if dump[i].Name != n {
			t.Fatalf("expected entry %d to be %q, got %q", i, n, dump[i].Name)
		}
	}
}

func TestLogbookFacadeReturnsSingleton(t *testing.T) {
	a := Logbook()
	b := Logbook()
	if a != b {
		t.Fatalf("expected Logbook() to return the same process-wide instance")
	}
}

func TestDefaultCapacityUsedWhenNonPositive(t *testing.T) {
	l := NewSyncLogbook(0)
	if cap(l.entries) != DefaultLogbookCapacity {
		t.Fatalf("expected fallback to DefaultLogbookCapacity, got %d", cap(l.entries))
	}
}
