package history

import (
	"errors"
	"time"

	"inkink/generator"
)

// StorageKey 是全部记录所在的唯一键。
const StorageKey = "inkink-history"

const (
	StatusCompleted  = "completed"
	StatusGenerating = "generating"
	StatusPartial    = "partial"
	StatusError      = "error"
)

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("未找到记录")

// Outline 保存原始大纲与切分后的页面。
type Outline struct {
	Raw   string           `json:"raw"`
	Pages []generator.Page `json:"pages"`
}

// Images 记录一次生成任务产出的图片。
type Images struct {
	TaskID    *string  `json:"task_id"`
	Generated []string `json:"generated"`
}

// Detail 是持久化的完整记录。
type Detail struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Outline   Outline   `json:"outline"`
	Images    Images    `json:"images"`
	Status    string    `json:"status"`
	Thumbnail *string   `json:"thumbnail"`
	PageCount int       `json:"page_count"`
}

// Record 是列表视图。
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    string    `json:"status"`
	Thumbnail *string   `json:"thumbnail"`
	PageCount int       `json:"page_count"`
	TaskID    *string   `json:"task_id"`
}

// Summary returns the list view of d.
func (d Detail) Summary() Record {
	return Record{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Status:    d.Status,
		Thumbnail: d.Thumbnail,
		PageCount: d.PageCount,
		TaskID:    d.Images.TaskID,
	}
}

// Patch 是 Update 的部分字段，nil 表示不修改。
type Patch struct {
	Outline   *Outline `json:"outline,omitempty"`
	Images    *Images  `json:"images,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Thumbnail *string  `json:"thumbnail,omitempty"`
}

// Page is one slice of a List call.
type Page struct {
	Records    []Record `json:"records"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Stats 按状态统计记录数。
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}
