package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"inkink/generator"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(NewMemoryBackend(), opts...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func outline(raw string) Outline {
	return Outline{Raw: raw, Pages: generator.BuildPages(raw)}
}

func TestCreatePrependsAndDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	first, err := s.Create(ctx, "第一篇", outline("a\nb\nc"), "task_1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := s.Create(ctx, "第二篇", outline("x"), "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first == second {
		t.Fatal("ids must be unique")
	}

	page, err := s.List(ctx, 1, 10, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Records[0].ID != second || page.Records[1].ID != first {
		t.Fatalf("newest record should come first: %+v", page.Records)
	}

	d, err := s.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Status != StatusCompleted || d.PageCount != 3 || len(d.Images.Generated) != 0 {
		t.Fatalf("unexpected record %+v", d)
	}
	if d.Images.TaskID == nil || *d.Images.TaskID != "task_1" || d.Thumbnail != nil {
		t.Fatalf("unexpected images/thumbnail %+v", d)
	}
	if !d.CreatedAt.Equal(d.UpdatedAt) {
		t.Fatal("new record should have equal timestamps")
	}
	if page.Records[0].TaskID != nil {
		t.Fatal("record created without task id should have nil task_id")
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const total = 23
	for i := 0; i < total; i++ {
		if _, err := s.Create(ctx, fmt.Sprintf("r%d", i), outline("a"), ""); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	for _, size := range []int{1, 5, 7, 20, 23, 50} {
		for page := 1; page <= 6; page++ {
			got, err := s.List(ctx, page, size, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			want := min(size, max(0, total-(page-1)*size))
			if len(got.Records) != want {
				t.Fatalf("page=%d size=%d: got %d records, want %d", page, size, len(got.Records), want)
			}
			if wantPages := (total + size - 1) / size; got.TotalPages != wantPages {
				t.Fatalf("size=%d: total_pages=%d, want %d", size, got.TotalPages, wantPages)
			}
			if got.Total != total {
				t.Fatalf("total=%d, want %d", got.Total, total)
			}
		}
	}
}

func TestListPaginationExtremeValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, fmt.Sprintf("r%d", i), outline("a"), ""); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	cases := []struct {
		page, size  int
		wantRecords int
		wantPages   int
	}{
		{1, math.MaxInt, 5, 1},
		{2, math.MaxInt, 0, 1},
		{math.MaxInt, 20, 0, 1},
		{math.MaxInt, math.MaxInt, 0, 1},
		{math.MaxInt / 2, 3, 0, 2},
	}
	for _, tc := range cases {
		got, err := s.List(ctx, tc.page, tc.size, "")
		if err != nil {
			t.Fatalf("List(%d, %d) failed: %v", tc.page, tc.size, err)
		}
		if len(got.Records) != tc.wantRecords || got.TotalPages != tc.wantPages || got.Total != 5 {
			t.Fatalf("List(%d, %d) = %d records, %d pages, total %d; want %d records, %d pages",
				tc.page, tc.size, len(got.Records), got.TotalPages, got.Total, tc.wantRecords, tc.wantPages)
		}
	}
}

func TestListStatusFilterBeforePagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 5; i++ {
		id, _ := s.Create(ctx, fmt.Sprintf("r%d", i), outline("a"), "")
		ids = append(ids, id)
	}
	partial := StatusPartial
	for _, id := range ids[:3] {
		if _, err := s.Update(ctx, id, Patch{Status: &partial}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	got, err := s.List(ctx, 2, 2, StatusPartial)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got.Total != 3 || got.TotalPages != 2 || len(got.Records) != 1 {
		t.Fatalf("unexpected page %+v", got)
	}
}

func TestUpdateMergesAndBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	s := newTestStore(t, WithClock(clock.now))
	id, _ := s.Create(ctx, "标题", outline("a\nb"), "task_1")
	created, _ := s.Get(ctx, id)

	thumb := "data:image/png;base64,AAAA"
	prev := created.UpdatedAt
	for i := 0; i < 5; i++ {
		d, err := s.Update(ctx, id, Patch{Thumbnail: &thumb})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if d.UpdatedAt.Before(prev) || d.UpdatedAt.Before(d.CreatedAt) {
			t.Fatalf("updated_at went backwards: %v < %v", d.UpdatedAt, prev)
		}
		if !d.CreatedAt.Equal(created.CreatedAt) {
			t.Fatal("created_at must not change")
		}
		prev = d.UpdatedAt
	}

	d, _ := s.Get(ctx, id)
	if d.Title != "标题" || d.PageCount != 2 || d.Thumbnail == nil || *d.Thumbnail != thumb {
		t.Fatalf("unsupplied fields should be kept: %+v", d)
	}
	if d.Images.TaskID == nil || *d.Images.TaskID != "task_1" {
		t.Fatal("images should be untouched")
	}
}

func TestUpdateClockSkewKeepsMonotonic(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	s := newTestStore(t, WithClock(clock.now))
	id, _ := s.Create(ctx, "t", outline("a"), "")
	before, _ := s.Get(ctx, id)

	clock.step = -time.Hour
	status := StatusError
	d, err := s.Update(ctx, id, Patch{Status: &status})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if d.UpdatedAt.Before(before.UpdatedAt) {
		t.Fatalf("updated_at regressed to %v", d.UpdatedAt)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keep, _ := s.Create(ctx, "keep", outline("a"), "")
	drop, _ := s.Create(ctx, "drop", outline("a"), "")

	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, drop); err != nil {
			t.Fatalf("Delete #%d failed: %v", i+1, err)
		}
		st, _ := s.Stats(ctx)
		if st.Total != 1 {
			t.Fatalf("after delete #%d total=%d", i+1, st.Total)
		}
	}
	if _, err := s.Get(ctx, keep); err != nil {
		t.Fatalf("other record should remain: %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("deleting absent id should succeed: %v", err)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _ = s.Create(ctx, "ABCdef", outline("a"), "")
	_, _ = s.Create(ctx, "xyz", outline("a"), "")
	_, _ = s.Create(ctx, "Straße 旅行", outline("a"), "")

	got, err := s.Search(ctx, "abc")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "ABCdef" {
		t.Fatalf("unexpected search result %+v", got)
	}
	if got, _ := s.Search(ctx, "旅行"); len(got) != 1 {
		t.Fatalf("expected unicode match, got %+v", got)
	}
	if got, _ := s.Search(ctx, "nothing"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.Create(ctx, "a", outline("a"), "")
	_, _ = s.Create(ctx, "b", outline("a"), "")
	status := StatusPartial
	_, _ = s.Update(ctx, a, Patch{Status: &status})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Total != 2 || st.ByStatus[StatusCompleted] != 1 || st.ByStatus[StatusPartial] != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestBackendsPersist(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "data")
			backend, err := OpenBackend(kind, dir)
			if err != nil {
				t.Fatalf("OpenBackend failed: %v", err)
			}
			s, _ := NewStore(backend)
			id, err := s.Create(ctx, "持久化", outline("a\nb"), "task_9")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			backend, err = OpenBackend(kind, dir)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			s, _ = NewStore(backend)
			defer s.Close()
			d, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get after reopen failed: %v", err)
			}
			if d.Title != "持久化" || len(d.Outline.Pages) != 2 {
				t.Fatalf("unexpected record %+v", d)
			}
		})
	}
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	page, err := s.List(ctx, 1, 20, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 0 || page.TotalPages != 0 || len(page.Records) != 0 {
		t.Fatalf("unexpected empty page %+v", page)
	}
	if _, err := OpenBackend("redis", t.TempDir()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
