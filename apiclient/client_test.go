package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkink/generator"
	"inkink/pipeline"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestGenerateOutlineSplitsPagesWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generateText" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["topic"] != "秋日穿搭" {
			t.Errorf("topic = %v", body["topic"])
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"outline": "1. 封面\n2. 搭配一\n3. 总结",
		})
	}))
	defer srv.Close()

	out, err := New(srv.URL).GenerateOutline(context.Background(), "秋日穿搭", nil)
	if err != nil {
		t.Fatalf("GenerateOutline failed: %v", err)
	}
	if len(out.Pages) != 3 {
		t.Fatalf("expected 3 pages, got %+v", out.Pages)
	}
	if out.Pages[0].Type != generator.PageCover || out.Pages[2].Type != generator.PageSummary {
		t.Fatalf("unexpected page types: %+v", out.Pages)
	}
}

func TestErrorsSurfaceServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generateText":
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"success": false, "error": "缺少 topic"})
		case "/api/generateImage":
			writeJSON(t, w, http.StatusOK, map[string]any{"success": false})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	_, err := c.GenerateOutline(context.Background(), "", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "缺少 topic" {
		t.Fatalf("unexpected outline error: %#v", err)
	}

	_, err = c.GenerateImage(context.Background(), generator.ImageRequest{Prompt: "x"})
	if err == nil || err.Error() != "生成失败" {
		t.Fatalf("unexpected image error: %v", err)
	}

	_, err = c.TaskImages(context.Background(), "t1")
	if err == nil || err.Error() != "HTTP error! status: 502" {
		t.Fatalf("unexpected task error: %v", err)
	}
}

func TestGenerateImagesRunsPipelineOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generator.ImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.TaskID != "task_http" {
			t.Errorf("task id = %q", req.TaskID)
		}
		if req.Prompt == "坏页" {
			writeJSON(t, w, http.StatusInternalServerError, map[string]any{"success": false, "error": "上游失败"})
			return
		}
		// 只返回 base64，客户端负责包装成 data URL。
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "image_base64": "QUJD", "size": "1024x1024"})
	}))
	defer srv.Close()

	pages := []generator.Page{
		{Index: 0, Type: generator.PageCover, Content: "封面"},
		{Index: 1, Type: generator.PageContent, Content: "坏页"},
		{Index: 2, Type: generator.PageSummary, Content: "总结"},
	}
	var progress []pipeline.ProgressEvent
	var fin pipeline.FinishEvent
	pipeline.Drain(New(srv.URL).GenerateImages(context.Background(), pipeline.Batch{Pages: pages, TaskID: "task_http"}), pipeline.Handlers{
		OnProgress: func(p pipeline.ProgressEvent) { progress = append(progress, p) },
		OnFinish:   func(f pipeline.FinishEvent) { fin = f },
	})

	if len(progress) != 6 {
		t.Fatalf("expected 6 progress events, got %d", len(progress))
	}
	if progress[3].Status != pipeline.StatusError || progress[3].Message != "上游失败" {
		t.Fatalf("unexpected failure event: %+v", progress[3])
	}
	if !fin.Success || len(fin.Images) != 2 || fin.Images[0] != "data:image/png;base64,QUJD" {
		t.Fatalf("unexpected finish: %+v", fin)
	}
	if len(fin.Failed) != 1 || fin.Failed[0] != 1 {
		t.Fatalf("unexpected failed indices: %v", fin.Failed)
	}
}

func TestRegenerateImageUsesSquareRatio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generator.ImageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AspectRatio != "1:1" || req.UserTopic != "露营" || req.PageType != generator.PageContent {
			t.Errorf("unexpected request: %+v", req)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "image_url": "data:image/png;base64,WFla"})
	}))
	defer srv.Close()

	res := New(srv.URL).RegenerateImage(context.Background(), "task_1",
		generator.Page{Index: 4, Type: generator.PageContent, Content: "装备"},
		RegenerateContext{UserTopic: "露营", FullOutline: "..."})
	if !res.Success || res.Index != 4 || res.ImageURL != "data:image/png;base64,WFla" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTaskImagesEscapesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/api/tasks/task%2F1%3Fx%23y" {
			t.Errorf("escaped path = %q", got)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("task id leaked into query: %q", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"images":  []any{map[string]any{"index": 2, "image_url": "data:image/png;base64,QQ=="}},
		})
	}))
	defer srv.Close()

	images, err := New(srv.URL).TaskImages(context.Background(), "task/1?x#y")
	if err != nil {
		t.Fatalf("TaskImages failed: %v", err)
	}
	if len(images) != 1 || images[0].Index != 2 {
		t.Fatalf("unexpected images: %+v", images)
	}
}

func TestRetryFailedImagesParsesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/retry-failed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		frames := []string{
			"event: retry_start\ndata: {\"message\":\"开始重试 2 张失败的图片\",\"total\":2}\n\n",
			"event: complete\ndata: {\"index\":1,\"status\":\"done\",\"image_url\":\"data:image/png;base64,QQ==\"}\n\n",
			"event: complete\ndata: {not json}\n\n",
			"event: error\ndata: {\"index\":3,\"message\":\"超时\"}\n\n",
			"event: retry_finish\ndata: {\"success\":false,\"total\":2,\"completed\":1,\"failed\":1}\n\n",
		}
		for _, f := range frames {
			// 拆成两半发送，验证跨块拼接。
			half := len(f) / 2
			_, _ = io.WriteString(w, f[:half])
			flusher.Flush()
			_, _ = io.WriteString(w, f[half:])
			flusher.Flush()
		}
	}))
	defer srv.Close()

	var starts, completes, errs []pipeline.ProgressEvent
	var fin *pipeline.RetryFinish
	var streamErr error
	DrainRetry(New(srv.URL).RetryFailedImages(context.Background(), RetryRequest{
		TaskID: "task_1",
		Pages:  []generator.Page{{Index: 1, Content: "a"}, {Index: 3, Content: "b"}},
	}), RetryHandlers{
		OnProgress:    func(p pipeline.ProgressEvent) { starts = append(starts, p) },
		OnComplete:    func(p pipeline.ProgressEvent) { completes = append(completes, p) },
		OnError:       func(p pipeline.ProgressEvent) { errs = append(errs, p) },
		OnFinish:      func(f pipeline.RetryFinish) { fin = &f },
		OnStreamError: func(err error) { streamErr = err },
	})

	if streamErr != nil {
		t.Fatalf("unexpected stream error: %v", streamErr)
	}
	if len(starts) != 1 || starts[0].Index != pipeline.BatchIndex || !strings.Contains(starts[0].Message, "2 张") {
		t.Fatalf("unexpected start events: %+v", starts)
	}
	if len(completes) != 1 || completes[0].Index != 1 {
		t.Fatalf("malformed frame should be skipped, got %+v", completes)
	}
	if len(errs) != 1 || errs[0].Status != pipeline.StatusError || errs[0].Message != "超时" {
		t.Fatalf("unexpected error events: %+v", errs)
	}
	if fin == nil || fin.Success || fin.Completed != 1 || fin.Failed != 1 {
		t.Fatalf("unexpected finish: %+v", fin)
	}
}

func TestRetryFailedImagesNon2xxIsStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"success": false, "error": "缺少 pages"})
	}))
	defer srv.Close()

	var events []RetryEvent
	for ev := range New(srv.URL).RetryFailedImages(context.Background(), RetryRequest{TaskID: "t"}) {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Kind != pipeline.KindStreamError {
		t.Fatalf("expected a single stream error, got %+v", events)
	}
	if got := events[0].Err.Error(); got != fmt.Sprintf("HTTP error! status: %d", http.StatusBadRequest) {
		t.Fatalf("unexpected error text: %q", got)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/config":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"success": true,
				"config": map[string]any{
					"text_generation": map[string]any{
						"active_provider": "openai",
						"providers": map[string]any{
							"openai": map[string]any{"type": "openai_compatible", "model": "gpt-4o", "api_key_masked": "sk-a****5678"},
						},
					},
				},
			})
		case r.URL.Path == "/api/config/test":
			var body ConnectionTest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.APIKey == "bad" {
				writeJSON(t, w, http.StatusOK, map[string]any{"success": false, "error": "invalid api key"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "连接成功：" + body.Model})
		default:
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "配置已保存（当前会话）"})
		}
	}))
	defer srv.Close()
	c := New(srv.URL)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if active := cfg.TextGeneration.Active(); active.Model != "gpt-4o" || active.APIKeyMasked != "sk-a****5678" {
		t.Fatalf("unexpected active provider: %+v", active)
	}
	if msg, err := c.UpdateConfig(ctx, map[string]any{"x": 1}); err != nil || msg == "" {
		t.Fatalf("UpdateConfig = %q, %v", msg, err)
	}
	if msg, err := c.TestConnection(ctx, ConnectionTest{Type: "openai_compatible", Model: "m"}); err != nil || msg != "连接成功：m" {
		t.Fatalf("TestConnection = %q, %v", msg, err)
	}
	if _, err := c.TestConnection(ctx, ConnectionTest{APIKey: "bad"}); err == nil || err.Error() != "invalid api key" {
		t.Fatalf("expected connection failure, got %v", err)
	}
	if res := c.ScanAllTasks(ctx); !res.Success || res.TotalTasks != 0 {
		t.Fatalf("unexpected scan result: %+v", res)
	}
}
