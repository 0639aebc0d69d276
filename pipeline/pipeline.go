package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"inkink/dataurl"
	"inkink/generator"
	"inkink/logging"
)

// ImageGenerator 生成单页图片。generator.Adapter 与 apiclient.Client 都实现了它。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req generator.ImageRequest) (generator.ImageResult, error)
}

// Batch 描述一次按页生成。
type Batch struct {
	Pages       []generator.Page
	TaskID      string
	FullOutline string
	UserTopic   string
	AspectRatio string
	// ReferenceFiles 为本地图片路径，开始前统一读成 data URL。
	ReferenceFiles []string
	// ReferenceImages 为已编码的 data URL，排在 ReferenceFiles 之后。
	ReferenceImages []string
}

// Pipeline 逐页、严格按顺序生成图片。
type Pipeline struct {
	gen      ImageGenerator
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInterval paces adapter calls to at most one per interval.
// Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(gen ImageGenerator, opts ...Option) (*Pipeline, error) {
	if gen == nil {
		return nil, errors.New("image generator required")
	}
	p := &Pipeline{gen: gen, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run 启动一次批量生成并返回事件通道，通道在最后一个事件之后关闭。
//
// 每页先发出一个 generating，再发出一个 done 或 error；单页失败不影响后续页面。
// 全部页面结束后发出一个 FinishEvent。参考图读取失败时只发出一个 stream_error
// 并终止批次。ctx 取消后剩余页面会立即以 error 结束，事件数量不变。
func (p *Pipeline) Run(ctx context.Context, b Batch) <-chan Event {
	// 缓冲足以容纳全部事件，消费者停止读取不会阻塞生产者。
	events := make(chan Event, 2*len(b.Pages)+2)
	if b.TaskID == "" {
		b.TaskID = "task_" + uuid.NewString()
	}

	go func() {
		defer close(events)
		refs, err := p.references(b)
		if err != nil {
			p.logger.Error("read reference images failed", "task_id", b.TaskID, "error", err)
			events <- streamError(err)
			return
		}
		events <- finish(p.generate(ctx, b, refs, events))
	}()
	return events
}

func (p *Pipeline) references(b Batch) ([]string, error) {
	refs, err := dataurl.FromFiles(b.ReferenceFiles)
	if err != nil {
		return nil, fmt.Errorf("read reference images: %w", err)
	}
	return append(refs, b.ReferenceImages...), nil
}

func (p *Pipeline) generate(ctx context.Context, b Batch, refs []string, events chan<- Event) FinishEvent {
	var limiter *rate.Limiter
	if p.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(p.interval), 1)
	}

	total := len(b.Pages)
	result := FinishEvent{Success: true, TaskID: b.TaskID, Images: []string{}}
	for i, page := range b.Pages {
		events <- progress(ProgressEvent{Index: page.Index, Status: StatusGenerating, Current: i + 1, Total: total})

		url, err := p.generatePage(ctx, limiter, b, refs, page)
		if err != nil {
			p.logger.Warn("page generation failed", "task_id", b.TaskID, "index", page.Index, "error", err)
			result.Failed = append(result.Failed, page.Index)
			events <- progress(ProgressEvent{Index: page.Index, Status: StatusError, Current: i + 1, Total: total, Message: ErrorMessage(err)})
			continue
		}
		result.Images = append(result.Images, url)
		events <- progress(ProgressEvent{Index: page.Index, Status: StatusDone, Current: i + 1, Total: total, ImageURL: url})
	}
	p.logger.Info("batch finished", "task_id", b.TaskID, "total", total, "failed", len(result.Failed))
	return result
}

func (p *Pipeline) generatePage(ctx context.Context, limiter *rate.Limiter, b Batch, refs []string, page generator.Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	res, err := p.gen.GenerateImage(ctx, generator.ImageRequest{
		Prompt:      page.Content,
		AspectRatio: b.AspectRatio,
		UserTopic:   b.UserTopic,
		FullOutline: b.FullOutline,
		PageType:    page.Type,
		UserImages:  refs,
		TaskID:      b.TaskID,
	})
	if err != nil {
		return "", err
	}
	if res.URL == "" {
		return "", generator.ErrNoImageData
	}
	return res.URL, nil
}

// ErrorMessage 返回适合展示给用户的错误文本。
func ErrorMessage(err error) string {
	var ue *generator.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message()
	}
	if err == nil {
		return "生成失败"
	}
	return err.Error()
}
