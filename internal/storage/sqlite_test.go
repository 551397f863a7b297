package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s Store, recs ...Record) {
	t.Helper()
	for _, r := range recs {
		if err := s.Upsert(context.Background(), r); err != nil {
			t.Fatalf("Upsert(%q): %v", r.Code, err)
		}
	}
}

func TestNewSQLiteStore(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("store is nil")
	}
}

func TestNewSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sizes.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, s, Record{Code: "A1", Size: "1*2*3", Description: "деталь"})
	s.Close()

	// Reopen: the record must survive.
	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLiteStore_All_Order(t *testing.T) {
	s := newTestStore(t)
	want := []Record{
		{Code: "223002G4GC", Size: "60*45*40", Description: "ГБЦ"},
		{Code: "7800012345", Size: "27*27*30", Description: "Турбина"},
		{Code: "EJBR04101D", Size: "25*6*5", Description: "Форсунка"},
	}
	seed(t, s, want...)

	got, err := s.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("All mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_All_Empty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty table, got %v", got)
	}
}

func TestSQLiteStore_Upsert_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		Record{Code: "k1", Size: "1*1*1", Description: "old"},
		Record{Code: "k1", Size: "2*2*2", Description: "new"},
	)

	got, _ := s.All(ctx)
	want := []Record{{Code: "k1", Size: "2*2*2", Description: "new"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, Record{Code: "ABC", Size: "1*1*1", Description: "old"})

	found, err := s.Update(ctx, Record{Code: "ABC", Size: "9*9*9", Description: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("Update reported not found")
	}
	got, _ := s.All(ctx)
	if got[0].Size != "9*9*9" || got[0].Description != "new" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestSQLiteStore_Update_CaseSensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, Record{Code: "ABC", Size: "1*1*1", Description: "old"})

	found, err := s.Update(ctx, Record{Code: "abc", Size: "9*9*9", Description: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("Update should match the code exactly")
	}
	got, _ := s.All(ctx)
	if got[0].Size != "1*1*1" {
		t.Errorf("record changed: %+v", got[0])
	}
}

func TestSQLiteStore_Rekey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, Record{Code: "OldCode", Size: "1*2*3", Description: "desc"})

	res, err := s.Rekey(ctx, "OLDCODE", "NewCode")
	if err != nil {
		t.Fatal(err)
	}
	if res != RekeyDone {
		t.Fatalf("Rekey = %v, want done", res)
	}
	got, _ := s.All(ctx)
	want := []Record{{Code: "NewCode", Size: "1*2*3", Description: "desc"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Rekey_TargetExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	before := []Record{
		{Code: "A", Size: "1*1*1", Description: "first"},
		{Code: "B", Size: "2*2*2", Description: "second"},
	}
	seed(t, s, before...)

	res, err := s.Rekey(ctx, "A", "B")
	if err != nil {
		t.Fatal(err)
	}
	if res != RekeyTargetExists {
		t.Fatalf("Rekey = %v, want target_exists", res)
	}
	got, _ := s.All(ctx)
	if diff := cmp.Diff(before, got); diff != "" {
		t.Errorf("records changed (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Rekey_TargetCheckIsCaseSensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, Record{Code: "abc", Size: "1*1*1", Description: "x"})

	// "ABC" does not exist exactly, and "abc" is found case-insensitively.
	res, err := s.Rekey(ctx, "abc", "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if res != RekeyDone {
		t.Fatalf("Rekey = %v, want done", res)
	}
	n, _ := s.CountMatching(ctx, "abc")
	if n != 1 {
		t.Errorf("CountMatching = %d, want 1", n)
	}
}

func TestSQLiteStore_Rekey_NotFound(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Rekey(context.Background(), "missing", "other")
	if err != nil {
		t.Fatal(err)
	}
	if res != RekeyNotFound {
		t.Errorf("Rekey = %v, want not_found", res)
	}
}

func TestSQLiteStore_Delete_IgnoresCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s,
		Record{Code: "223002G4GC", Size: "60*45*40", Description: "ГБЦ"},
		Record{Code: "OTHER", Size: "1*1*1", Description: "x"},
	)

	if err := s.Delete(ctx, "223002g4gc"); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountMatching(ctx, "223002G4GC")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountMatching after delete = %d, want 0", n)
	}
	total, _ := s.Count(ctx)
	if total != 1 {
		t.Errorf("Count = %d, want 1", total)
	}
}

func TestSQLiteStore_Delete_NotFound(t *testing.T) {
	s := newTestStore(t)
	// Should not error on missing code.
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStore_CountMatching_ExactOnly(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, Record{Code: "ABC123", Size: "1*1*1", Description: "x"})

	n, err := s.CountMatching(context.Background(), "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("prefix must not count as a match, got %d", n)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpen_SQLiteDefault(t *testing.T) {
	s, err := Open(context.Background(), "", ":memory:", "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open returned %T, want *SQLiteStore", s)
	}
}

func TestNumberedPlaceholders(t *testing.T) {
	got := numberedPlaceholders("UPDATE sizes SET size = ?, description = ? WHERE code = ?")
	want := "UPDATE sizes SET size = $1, description = $2 WHERE code = $3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRekeyResult_String(t *testing.T) {
	tests := map[RekeyResult]string{
		RekeyDone:         "done",
		RekeyTargetExists: "target_exists",
		RekeyNotFound:     "not_found",
		RekeyResult(99):   "unknown",
	}
	for r, want := range tests {
		if r.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(r), r.String(), want)
		}
	}
}
