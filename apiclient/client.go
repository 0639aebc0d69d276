// Package apiclient 是 HTTP 接口的 Go 客户端，提供与前端相同的调用方式：
// 生成大纲、逐页生成图片、重试失败页面以及配置管理。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inkink/dataurl"
	"inkink/generator"
	"inkink/logging"
	"inkink/pipeline"
)

// APIError 是服务端返回的失败结果。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.Status)
	}
	return e.Message
}

// Client talks to an inkink server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
	// Interval 为 GenerateImages 逐页调用之间的最小间隔。
	Interval time.Duration
}

// New returns a client for the server at baseURL (e.g. http://127.0.0.1:12398).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
		Logger:  logging.NewNop(),
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + "/api" + path
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: envelope.Error}
	}
	if envelope.Success != nil && !*envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "生成失败"
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// OutlineResponse 是 generateText 的结果。
type OutlineResponse struct {
	Success   bool             `json:"success"`
	Outline   string           `json:"outline"`
	Pages     []generator.Page `json:"pages"`
	HasImages bool             `json:"has_images"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
}

// GenerateOutline 生成大纲。服务端没有返回页面时在本地按行切分。
func (c *Client) GenerateOutline(ctx context.Context, topic string, images []string) (OutlineResponse, error) {
	var out OutlineResponse
	err := c.do(ctx, http.MethodPost, "/generateText", map[string]any{"topic": topic, "images": images}, &out)
	if err != nil {
		return OutlineResponse{}, err
	}
	if len(out.Pages) == 0 && out.Outline != "" {
		out.Pages = generator.SplitPages(out.Outline)
	}
	return out, nil
}

// GenerateOutlineFromFiles reads image files as data URLs before calling GenerateOutline.
func (c *Client) GenerateOutlineFromFiles(ctx context.Context, topic string, paths []string) (OutlineResponse, error) {
	images, err := dataurl.FromFiles(paths)
	if err != nil {
		return OutlineResponse{}, err
	}
	return c.GenerateOutline(ctx, topic, images)
}

type imageResponse struct {
	ImageBase64 string `json:"image_base64"`
	ImageURL    string `json:"image_url"`
	Size        string `json:"size"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

// GenerateImage 生成单页图片，满足 pipeline.ImageGenerator。
func (c *Client) GenerateImage(ctx context.Context, req generator.ImageRequest) (generator.ImageResult, error) {
	var out imageResponse
	if err := c.do(ctx, http.MethodPost, "/generateImage", req, &out); err != nil {
		return generator.ImageResult{}, err
	}
	imageURL := out.ImageURL
	if imageURL == "" && out.ImageBase64 != "" {
		imageURL = dataurl.Wrap(dataurl.DefaultImageMIME, out.ImageBase64)
	}
	if imageURL == "" {
		return generator.ImageResult{}, generator.ErrNoImageData
	}
	return generator.ImageResult{
		Base64:   out.ImageBase64,
		URL:      imageURL,
		Size:     out.Size,
		Provider: out.Provider,
		Model:    out.Model,
	}, nil
}

// GenerateImages 逐页生成图片，事件语义见 pipeline.Pipeline.Run。
func (c *Client) GenerateImages(ctx context.Context, b pipeline.Batch) <-chan pipeline.Event {
	p, _ := pipeline.New(c, pipeline.WithInterval(c.Interval), pipeline.WithLogger(c.logger()))
	return p.Run(ctx, b)
}

// RegenerateContext 是重新生成单页时附带的上下文。
type RegenerateContext struct {
	FullOutline string
	UserTopic   string
}

// RegenerateResult 单页重新生成的结果。
type RegenerateResult struct {
	Success  bool   `json:"success"`
	Index    int    `json:"index"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RegenerateImage 重新生成一页，不论之前是否成功。失败体现在结果中而不是 error。
func (c *Client) RegenerateImage(ctx context.Context, taskID string, page generator.Page, rc RegenerateContext) RegenerateResult {
	res, err := c.GenerateImage(ctx, generator.ImageRequest{
		Prompt:      page.Content,
		AspectRatio: "1:1",
		UserTopic:   rc.UserTopic,
		FullOutline: rc.FullOutline,
		PageType:    page.Type,
		TaskID:      taskID,
	})
	if err != nil {
		return RegenerateResult{Index: page.Index, Error: pipeline.ErrorMessage(err)}
	}
	return RegenerateResult{Success: true, Index: page.Index, ImageURL: res.URL}
}

// TaskImages returns the images the server recorded for taskID.
func (c *Client) TaskImages(ctx context.Context, taskID string) ([]TaskImage, error) {
	var out struct {
		Images []TaskImage `json:"images"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// TaskImage mirrors one entry of GET /api/tasks/{task_id}.
type TaskImage struct {
	Index int    `json:"index"`
	URL   string `json:"image_url"`
}

// ScanResult 是 ScanAllTasks 的结果。
type ScanResult struct {
	Success     bool     `json:"success"`
	TotalTasks  int      `json:"total_tasks"`
	Synced      int      `json:"synced"`
	Failed      int      `json:"failed"`
	OrphanTasks []string `json:"orphan_tasks"`
}

// ScanAllTasks 保留接口；图片只保存在客户端历史中，没有需要同步的任务。
func (c *Client) ScanAllTasks(context.Context) ScanResult {
	return ScanResult{Success: true, OrphanTasks: []string{}}
}
