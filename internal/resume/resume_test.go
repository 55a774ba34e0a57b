package resume

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/atch2203/split-the-bill/internal/bill"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "session.json"))
}

func sampleRecord() Record {
	state := bill.New()
	state.Items = []bill.Item{{ID: "i1", Name: "Pizza", Price: 12, Quantity: 1, AssignedTo: []string{"p1"}}}
	state.People = []bill.Person{{ID: "p1", Name: "Alice", Color: bill.PersonColors[0]}}
	state.ColorIndex = 1
	return Record{
		Role:     "host",
		RoomID:   "ab12cd",
		Passcode: "4321",
		State:    state,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	if err := s.Save("correct horse", sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load("correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := sampleRecord()
	if got.Role != want.Role || got.RoomID != want.RoomID || got.Passcode != want.Passcode {
		t.Fatalf("identity diverged: %+v", got)
	}
	if !got.State.Equal(want.State) {
		t.Fatalf("state diverged: %+v", got.State)
	}
	if got.SavedAt.IsZero() {
		t.Fatalf("SavedAt not stamped")
	}
}

func TestLoadWrongPassphrase(t *testing.T) {
	s := testStore(t)
	if err := s.Save("correct horse", sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Load("battery staple"); !errors.Is(err, ErrInvalidPass) {
		t.Fatalf("expected ErrInvalidPass, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := testStore(t)
	if _, err := s.Load("whatever"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRequiresPassphrase(t *testing.T) {
	s := testStore(t)
	if err := s.Save("", sampleRecord()); !errors.Is(err, ErrInvalidPass) {
		t.Fatalf("expected ErrInvalidPass, got %v", err)
	}
}

func TestSaveReplacesPriorRecord(t *testing.T) {
	s := testStore(t)
	first := sampleRecord()
	if err := s.Save("pass", first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := sampleRecord()
	second.Role = "guest"
	second.RoomID = ""
	second.Target = "ws://host.example/rooms/ab12cd"
	if err := s.Save("pass", second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.Load("pass")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Role != "guest" || got.Target != second.Target {
		t.Fatalf("prior record survived: %+v", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Save("pass", sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := s.Load("pass"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record survived clear: %v", err)
	}
}
