package server

import (
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// TaskImage 是任务中某一页的图片；Index 为 -1 表示请求没有携带页码。
type TaskImage struct {
	Index int    `json:"index"`
	URL   string `json:"image_url"`
}

// taskRegistry 记录每个 task_id 最近生成的图片，条目在 ttl 后过期。
type taskRegistry struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

func newTaskRegistry(ttl time.Duration) *taskRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &taskRegistry{cache: cache.New(ttl, ttl/2), ttl: ttl}
}

// record stores url for the page; a later image for the same index replaces it.
func (r *taskRegistry) record(taskID string, index int, url string) {
	if taskID == "" || url == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var images []TaskImage
	if v, ok := r.cache.Get(taskID); ok {
		images = slices.Clone(v.([]TaskImage))
	}
	pos := -1
	if index >= 0 {
		pos = slices.IndexFunc(images, func(img TaskImage) bool { return img.Index == index })
	}
	if pos >= 0 {
		images[pos].URL = url
	} else {
		images = append(images, TaskImage{Index: index, URL: url})
	}
	r.cache.Set(taskID, images, r.ttl)
}

func (r *taskRegistry) get(taskID string) ([]TaskImage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache.Get(taskID)
	if !ok {
		return nil, false
	}
	images := slices.Clone(v.([]TaskImage))
	slices.SortStableFunc(images, func(a, b TaskImage) int {
		switch {
		case a.Index < 0 && b.Index >= 0:
			return 1
		case b.Index < 0 && a.Index >= 0:
			return -1
		default:
			return a.Index - b.Index
		}
	})
	return images, true
}
