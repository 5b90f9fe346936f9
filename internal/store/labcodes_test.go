package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/erazemk/labcodes/internal/db"
	"github.com/erazemk/labcodes/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(db.NewTestDB(t))
}

func mustCreate(t *testing.T, s *Store, subject, lab, variant, code string) *model.LabCode {
	t.Helper()
	c, err := s.Create(context.Background(), model.NewLabCode{
		Subject: subject, LabNumber: lab, Variant: variant, Code: code,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func ids(codes []model.LabCode) []int64 {
	out := make([]int64, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.ID)
	}
	return out
}

func TestCreateAndGetLabCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"
	created := mustCreate(t, s, "Math", "1", "a", code)
	if created.ID == 0 {
		t.Fatal("expected non-zero id")
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := model.LabCode{ID: created.ID, Subject: "Math", LabNumber: "1", Variant: "a", Code: code, CreatedAt: created.CreatedAt}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRejectsEmptyFields(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(context.Background(), model.NewLabCode{Subject: "Math", LabNumber: "1", Variant: " ", Code: "x"})
	if !errors.Is(err, model.ErrEmptyField) {
		t.Fatalf("expected ErrEmptyField, got %v", err)
	}

	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("expected nothing stored, got %d rows", n)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIDsAreNotReused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := mustCreate(t, s, "Math", "1", "a", "x")
	second := mustCreate(t, s, "Math", "1", "b", "y")
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}

	s.Delete(ctx, second.ID)
	third := mustCreate(t, s, "Math", "1", "c", "z")
	if third.ID <= second.ID {
		t.Errorf("expected id after %d, got %d", second.ID, third.ID)
	}
}

func TestDuplicatesAllowed(t *testing.T) {
	s := newTestStore(t)

	a := mustCreate(t, s, "Math", "1", "a", "x")
	b := mustCreate(t, s, "Math", "1", "a", "x")
	if a.ID == b.ID {
		t.Fatal("expected distinct ids for duplicate records")
	}
}

func TestUpdateCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, "Math", "1", "a", "old")

	ok, err := s.UpdateCode(ctx, c.ID, "new\ncode")
	if err != nil {
		t.Fatalf("UpdateCode: %v", err)
	}
	if !ok {
		t.Fatal("expected update to report success")
	}

	got, _ := s.Get(ctx, c.ID)
	if got.Code != "new\ncode" {
		t.Errorf("expected updated code, got %q", got.Code)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("expected created_at unchanged, got %v want %v", got.CreatedAt, c.CreatedAt)
	}

	ok, err = s.UpdateCode(ctx, 999, "x")
	if err != nil {
		t.Fatalf("UpdateCode missing: %v", err)
	}
	if ok {
		t.Error("expected false for missing id")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, "Math", "1", "a", "x")

	ok, err := s.Delete(ctx, c.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v; expected true, nil", ok, err)
	}
	if _, err := s.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	ok, err = s.Delete(ctx, c.ID)
	if err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if ok {
		t.Error("expected false when deleting a missing id")
	}
}

func TestListOrderedByID(t *testing.T) {
	s := newTestStore(t)

	a := mustCreate(t, s, "Physics", "2", "a", "x")
	b := mustCreate(t, s, "Math", "1", "a", "y")

	all, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]int64{a.ID, b.ID}, ids(all)); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}
}

func TestSubjectsDistinctSorted(t *testing.T) {
	s := newTestStore(t)

	mustCreate(t, s, "Physics", "1", "a", "x")
	mustCreate(t, s, "Math", "1", "a", "x")
	mustCreate(t, s, "Math", "2", "a", "x")
	mustCreate(t, s, "Chemistry", "1", "a", "x")
	mustCreate(t, s, "Math", "3", "b", "x")

	subjects, err := s.Subjects(context.Background())
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	want := []string{"Chemistry", "Math", "Physics"}
	if diff := cmp.Diff(want, subjects); diff != "" {
		t.Errorf("Subjects mismatch (-want +got):\n%s", diff)
	}
}

func TestListBySubject(t *testing.T) {
	s := newTestStore(t)

	b := mustCreate(t, s, "Math", "1", "b", "x")
	c := mustCreate(t, s, "Physics", "1", "a", "x")
	a := mustCreate(t, s, "Math", "1", "a", "x")
	d := mustCreate(t, s, "Math", "2", "a", "x")

	math, err := s.ListBySubject(context.Background(), "Math")
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if diff := cmp.Diff([]int64{a.ID, b.ID, d.ID}, ids(math)); diff != "" {
		t.Errorf("ListBySubject mismatch (-want +got):\n%s", diff)
	}

	physics, _ := s.ListBySubject(context.Background(), "Physics")
	if diff := cmp.Diff([]int64{c.ID}, ids(physics)); diff != "" {
		t.Errorf("ListBySubject(Physics) mismatch (-want +got):\n%s", diff)
	}

	none, err := s.ListBySubject(context.Background(), "History")
	if err != nil {
		t.Fatalf("ListBySubject empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no records, got %d", len(none))
	}
}

func TestListPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		mustCreate(t, s, "Math", fmt.Sprint(i), "a", "x")
	}

	tests := []struct {
		page      int
		wantLen   int
		wantFirst string
	}{
		{1, 5, "1"},
		{2, 5, "6"},
		{3, 2, "11"},
		{4, 0, ""},
		{0, 0, ""},
		{-1, 0, ""},
	}

	for _, tt := range tests {
		codes, total, err := s.ListPage(ctx, tt.page, 5)
		if err != nil {
			t.Fatalf("ListPage(%d): %v", tt.page, err)
		}
		if total != 3 {
			t.Errorf("ListPage(%d): expected 3 pages, got %d", tt.page, total)
		}
		if len(codes) != tt.wantLen {
			t.Errorf("ListPage(%d): expected %d records, got %d", tt.page, tt.wantLen, len(codes))
			continue
		}
		if tt.wantLen > 0 && codes[0].LabNumber != tt.wantFirst {
			t.Errorf("ListPage(%d): expected first lab %q, got %q", tt.page, tt.wantFirst, codes[0].LabNumber)
		}
	}
}

func TestListPageEmptyStore(t *testing.T) {
	s := newTestStore(t)

	codes, total, err := s.ListPage(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 0 || len(codes) != 0 {
		t.Errorf("expected empty result, got %d records and %d pages", len(codes), total)
	}

	if _, _, err := s.ListPage(context.Background(), 1, 0); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestClosedDatabaseReturnsErrors(t *testing.T) {
	database := db.NewTestDB(t)
	s := New(database)
	database.Close()

	ctx := context.Background()
	if _, err := s.Create(ctx, model.NewLabCode{Subject: "Math", LabNumber: "1", Variant: "a", Code: "x"}); err == nil {
		t.Error("expected Create to fail on closed database")
	}
	if _, err := s.Subjects(ctx); err == nil {
		t.Error("expected Subjects to fail on closed database")
	}
	if ok, err := s.Delete(ctx, 1); err == nil || ok {
		t.Errorf("expected Delete to fail on closed database, got %v, %v", ok, err)
	}
}
