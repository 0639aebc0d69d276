package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"inkink/generator"
	"inkink/pipeline"
	"inkink/sse"
)

// RetryRequest 是 retry-failed 的请求体。
type RetryRequest struct {
	TaskID      string           `json:"task_id"`
	Pages       []generator.Page `json:"pages"`
	FullOutline string           `json:"full_outline,omitempty"`
	UserTopic   string           `json:"user_topic,omitempty"`
	AspectRatio string           `json:"aspect_ratio,omitempty"`
	UserImages  []string         `json:"user_images,omitempty"`
}

// RetryEvent is one decoded message of the retry stream. Progress carries
// retry_start (Index -1, generating), complete (done) and error frames.
type RetryEvent struct {
	Kind     pipeline.Kind
	Progress *pipeline.ProgressEvent
	Finish   *pipeline.RetryFinish
	Err      error
}

// RetryHandlers 以回调方式消费重试事件。
type RetryHandlers struct {
	OnProgress    func(pipeline.ProgressEvent)
	OnComplete    func(pipeline.ProgressEvent)
	OnError       func(pipeline.ProgressEvent)
	OnFinish      func(pipeline.RetryFinish)
	OnStreamError func(error)
}

// RetryFailedImages 请求服务端重试失败页面并解析事件流。
// 非 2xx 响应或读取失败只产生一个 stream_error 事件并结束；无法解析的帧被跳过。
func (c *Client) RetryFailedImages(ctx context.Context, req RetryRequest) <-chan RetryEvent {
	events := make(chan RetryEvent, 16)
	go func() {
		defer close(events)
		emit := func(ev RetryEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if err := c.streamRetry(ctx, req, emit); err != nil {
			emit(RetryEvent{Kind: pipeline.KindStreamError, Err: err})
		}
	}()
	return events
}

func (c *Client) streamRetry(ctx context.Context, req RetryRequest, emit func(RetryEvent) bool) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/retry-failed"), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode}
	}

	logger := c.logger().With("task_id", req.TaskID)
	return sse.Read(resp.Body, func(f sse.Frame) {
		ev, ok := decodeRetryFrame(f)
		if !ok {
			logger.Warn("skip malformed sse frame", "event", f.Event, "data", string(f.Data))
			return
		}
		emit(ev)
	})
}

func decodeRetryFrame(f sse.Frame) (RetryEvent, bool) {
	switch f.Event {
	case "retry_start":
		var data struct {
			Message string `json:"message"`
		}
		if err := f.Decode(&data); err != nil {
			return RetryEvent{}, false
		}
		return RetryEvent{Kind: pipeline.KindProgress, Progress: &pipeline.ProgressEvent{
			Index: pipeline.BatchIndex, Status: pipeline.StatusGenerating, Message: data.Message,
		}}, true
	case "complete", "error":
		var p pipeline.ProgressEvent
		if err := f.Decode(&p); err != nil {
			return RetryEvent{}, false
		}
		if p.Status == "" {
			p.Status = pipeline.StatusDone
			if f.Event == "error" {
				p.Status = pipeline.StatusError
			}
		}
		return RetryEvent{Kind: pipeline.KindProgress, Progress: &p}, true
	case "retry_finish":
		var fin pipeline.RetryFinish
		if err := f.Decode(&fin); err != nil {
			return RetryEvent{}, false
		}
		return RetryEvent{Kind: pipeline.KindFinish, Finish: &fin}, true
	default:
		return RetryEvent{}, false
	}
}

// DrainRetry 把事件分发给回调，直到通道关闭。
func DrainRetry(events <-chan RetryEvent, h RetryHandlers) {
	for ev := range events {
		switch ev.Kind {
		case pipeline.KindProgress:
			p := *ev.Progress
			switch {
			case p.Status == pipeline.StatusDone && h.OnComplete != nil:
				h.OnComplete(p)
			case p.Status == pipeline.StatusError && h.OnError != nil:
				h.OnError(p)
			case p.Status == pipeline.StatusGenerating && h.OnProgress != nil:
				h.OnProgress(p)
			}
		case pipeline.KindFinish:
			if h.OnFinish != nil {
				h.OnFinish(*ev.Finish)
			}
		case pipeline.KindStreamError:
			if h.OnStreamError != nil {
				h.OnStreamError(ev.Err)
			}
		}
	}
}
