package generator

import (
	"errors"
	"fmt"
)

// ErrMissingCredential 未配置 API Key，在发起任何网络请求之前返回。
var ErrMissingCredential = errors.New("缺少 OPENAI_API_KEY 环境变量")

// ErrNoImageData 响应中找不到可用的图片数据。
var ErrNoImageData = errors.New("生成失败，未返回图片")

// ValidationError 缺少必填字段。
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "缺少 " + e.Field
}

// UpstreamError wraps a failure of the remote generative service. Extraction
// failures are UpstreamErrors wrapping ErrNoImageData.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Message 返回可直接展示给用户的错误文本。
func (e *UpstreamError) Message() string {
	if e.Err == nil {
		return "生成失败"
	}
	if msg := remoteMessage(e.Err); msg != "" {
		return msg
	}
	return e.Err.Error()
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsExtraction reports whether err is a response-shape failure.
func IsExtraction(err error) bool {
	return errors.Is(err, ErrNoImageData)
}
