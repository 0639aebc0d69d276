package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"inkink/generator"
)

const defaultPageSize = 20

// Store 是历史记录仓库。每个操作都读出整个序列、在内存中修改、再整体写回。
// 没有事务隔离：两个并发写入者会互相覆盖，后写者生效。
type Store struct {
	backend Backend
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("history backend required")
	}
	s := &Store{
		backend: backend,
		now:     time.Now,
		newID:   func() string { return "record_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) load(ctx context.Context) ([]Detail, error) {
	data, err := s.backend.Load(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []Detail
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, records []Detail) error {
	if records == nil {
		records = []Detail{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.backend.Save(ctx, StorageKey, data)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Create 新建一条记录并放在最前面，返回记录 ID。
func (s *Store) Create(ctx context.Context, topic string, outline Outline, taskID string) (string, error) {
	records, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	var tid *string
	if taskID != "" {
		tid = &taskID
	}
	if outline.Pages == nil {
		outline.Pages = []generator.Page{}
	}
	now := s.timestamp()
	d := Detail{
		ID:        s.newID(),
		Title:     topic,
		CreatedAt: now,
		UpdatedAt: now,
		Outline:   outline,
		Images:    Images{TaskID: tid, Generated: []string{}},
		Status:    StatusCompleted,
		PageCount: len(outline.Pages),
	}
	if err := s.save(ctx, append([]Detail{d}, records...)); err != nil {
		return "", err
	}
	return d.ID, nil
}

// List 先按 status 精确过滤再分页。page 从 1 开始。
func (s *Store) List(ctx context.Context, page, pageSize int, status string) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	records, err := s.load(ctx)
	if err != nil {
		return Page{}, err
	}
	if status != "" {
		records = slices.DeleteFunc(records, func(d Detail) bool { return d.Status != status })
	}

	total := len(records)
	// 页码与页大小来自请求参数，先比较再相乘，避免溢出。
	start := total
	if page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	return Page{
		Records:    summaries(records[start:end]),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Detail, error) {
	records, err := s.load(ctx)
	if err != nil {
		return Detail{}, err
	}
	for _, d := range records {
		if d.ID == id {
			return d, nil
		}
	}
	return Detail{}, ErrNotFound
}

// Update 合并 patch 中非 nil 的字段并刷新 updated_at。
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Detail, error) {
	records, err := s.load(ctx)
	if err != nil {
		return Detail{}, err
	}
	idx := slices.IndexFunc(records, func(d Detail) bool { return d.ID == id })
	if idx < 0 {
		return Detail{}, ErrNotFound
	}

	d := records[idx]
	if patch.Outline != nil {
		d.Outline = *patch.Outline
		d.PageCount = len(d.Outline.Pages)
	}
	if patch.Images != nil {
		d.Images = *patch.Images
		if d.Images.Generated == nil {
			d.Images.Generated = []string{}
		}
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Thumbnail != nil {
		d.Thumbnail = patch.Thumbnail
	}
	// 时钟回拨时也不能让 updated_at 倒退。
	now := s.timestamp()
	if now.Before(d.UpdatedAt) {
		now = d.UpdatedAt
	}
	d.UpdatedAt = now
	records[idx] = d

	if err := s.save(ctx, records); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// Delete removes the record with id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, slices.DeleteFunc(records, func(d Detail) bool { return d.ID == id }))
}

// Search 按标题做大小写不敏感的子串匹配。
func (s *Store) Search(ctx context.Context, keyword string) ([]Record, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	needle := fold.String(keyword)
	out := []Record{}
	for _, d := range records {
		if strings.Contains(fold.String(d.Title), needle) {
			out = append(out, d.Summary())
		}
	}
	return out, nil
}

// Stats 统计总数与各状态数量。
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	records, err := s.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(records), ByStatus: map[string]int{}}
	for _, d := range records {
		st.ByStatus[d.Status]++
	}
	return st, nil
}

func summaries(records []Detail) []Record {
	out := make([]Record, len(records))
	for i, d := range records {
		out[i] = d.Summary()
	}
	return out
}
