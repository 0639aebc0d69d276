package server

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"inkink/generator"
	"inkink/pipeline"
	"inkink/sse"
)

type retryReq struct {
	TaskID      string           `json:"task_id"`
	Pages       []generator.Page `json:"pages"`
	FullOutline string           `json:"full_outline,omitempty"`
	UserTopic   string           `json:"user_topic,omitempty"`
	AspectRatio string           `json:"aspect_ratio,omitempty"`
	UserImages  []string         `json:"user_images,omitempty"`
}

// handleRetryFailed 以事件流返回重试进度：retry_start、每页一个 complete 或 error、
// 最后一个 retry_finish。页面并发生成，事件顺序取决于完成顺序。
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	var req retryReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "缺少 task_id")
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, "缺少 pages")
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx := r.Context()
	total := len(req.Pages)
	logger := s.logger.With("task_id", req.TaskID)
	send := func(event string, v any) {
		if err := stream.Send(event, v); err != nil {
			logger.Warn("send sse event failed", "event", event, "error", err)
		}
	}

	send("retry_start", map[string]any{
		"message": fmt.Sprintf("开始重试 %d 张失败的图片", total),
		"total":   total,
	})

	var completed, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Pipeline.RetryConcurrency, 1))
	for _, page := range req.Pages {
		g.Go(func() error {
			res, err := s.gen.GenerateImage(ctx, generator.ImageRequest{
				Prompt:      page.Content,
				AspectRatio: req.AspectRatio,
				UserTopic:   req.UserTopic,
				FullOutline: req.FullOutline,
				PageType:    page.Type,
				UserImages:  req.UserImages,
				TaskID:      req.TaskID,
			})
			if err != nil {
				failed.Add(1)
				logger.Warn("retry page failed", "index", page.Index, "error", err)
				send("error", pipeline.ProgressEvent{Index: page.Index, Status: pipeline.StatusError, Message: pipeline.ErrorMessage(err)})
				return nil
			}
			completed.Add(1)
			s.tasks.record(req.TaskID, page.Index, res.URL)
			send("complete", pipeline.ProgressEvent{Index: page.Index, Status: pipeline.StatusDone, ImageURL: res.URL})
			return nil
		})
	}
	_ = g.Wait()

	finish := pipeline.RetryFinish{
		Success:   failed.Load() == 0,
		Total:     total,
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
	}
	logger.Info("retry finished", "completed", finish.Completed, "failed", finish.Failed)
	send("retry_finish", finish)
}
