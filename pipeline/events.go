package pipeline

// Status 单页进度状态。
type Status string

const (
	StatusGenerating Status = "generating"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// BatchIndex marks a progress event that concerns the whole batch.
const BatchIndex = -1

// ProgressEvent 单页进度通知。Index 为 -1 表示批次级别的消息。
type ProgressEvent struct {
	Index    int    `json:"index"`
	Status   Status `json:"status"`
	Current  int    `json:"current,omitempty"`
	Total    int    `json:"total,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// FinishEvent 批次结束通知。Images 只包含成功页面的结果，按生成顺序排列；
// Failed 记录失败页面的 Index，便于调用方恢复页面与图片的对应关系。
type FinishEvent struct {
	Success bool     `json:"success"`
	TaskID  string   `json:"task_id"`
	Images  []string `json:"images"`
	Failed  []int    `json:"failed,omitempty"`
}

// RetryFinish 是重试批次的结束通知。
type RetryFinish struct {
	Success   bool `json:"success"`
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
}

// Kind discriminates Event payloads.
type Kind string

const (
	KindProgress    Kind = "progress"
	KindFinish      Kind = "finish"
	KindStreamError Kind = "stream_error"
)

// Event is one message on a pipeline channel. Exactly one of Progress,
// Finish or Err is set, matching Kind.
type Event struct {
	Kind     Kind
	Progress *ProgressEvent
	Finish   *FinishEvent
	Err      error
}

// Handlers 以回调方式消费事件，未设置的回调会被忽略。
type Handlers struct {
	OnProgress    func(ProgressEvent)
	OnFinish      func(FinishEvent)
	OnStreamError func(error)
}

// Drain 依次把事件分发给回调，直到通道关闭。
func Drain(events <-chan Event, h Handlers) {
	for ev := range events {
		switch ev.Kind {
		case KindProgress:
			if h.OnProgress != nil && ev.Progress != nil {
				h.OnProgress(*ev.Progress)
			}
		case KindFinish:
			if h.OnFinish != nil && ev.Finish != nil {
				h.OnFinish(*ev.Finish)
			}
		case KindStreamError:
			if h.OnStreamError != nil {
				h.OnStreamError(ev.Err)
			}
		}
	}
}

func progress(p ProgressEvent) Event { return Event{Kind: KindProgress, Progress: &p} }

func finish(f FinishEvent) Event { return Event{Kind: KindFinish, Finish: &f} }

func streamError(err error) Event { return Event{Kind: KindStreamError, Err: err} }
