// Package sse implements the small server-sent events dialect used by the
// retry endpoint: frames separated by a blank line, each carrying one
// "event:" line and one "data:" line with a JSON payload.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Frame is one decoded event.
type Frame struct {
	Event string
	Data  []byte
}

// Decode unmarshals the frame payload.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Writer 把事件写入 HTTP 响应，每帧写完立即 flush。可并发使用。
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter 设置 SSE 响应头并返回 Writer。ResponseWriter 必须支持 Flush。
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one frame with v encoded as JSON.
func (s *Writer) Send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

var frameSep = []byte("\n\n")

// Decoder 增量解析事件流，未完整的帧留在缓冲区等待下一块数据。
type Decoder struct {
	buf []byte
}

// Feed appends chunk and returns every frame completed by it.
func (d *Decoder) Feed(chunk []byte) []Frame {
	// \r\n 可能被拆在两块之间，所以对整个缓冲区做替换。
	d.buf = bytes.ReplaceAll(append(d.buf, chunk...), []byte("\r\n"), []byte("\n"))
	var frames []Frame
	for {
		i := bytes.Index(d.buf, frameSep)
		if i < 0 {
			break
		}
		raw := d.buf[:i]
		d.buf = d.buf[i+len(frameSep):]
		if f, ok := parseFrame(raw); ok {
			frames = append(frames, f)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Pending returns the bytes of the incomplete trailing frame.
func (d *Decoder) Pending() []byte { return d.buf }

func parseFrame(raw []byte) (Frame, bool) {
	var f Frame
	var data [][]byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			f.Event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data = append(data, bytes.TrimPrefix(line[len("data:"):], []byte(" ")))
		}
	}
	if f.Event == "" && len(data) == 0 {
		return Frame{}, false
	}
	f.Data = bytes.Join(data, []byte("\n"))
	return f, true
}

// Read 从 r 读取事件流直到 EOF，每解析出一帧就调用 fn。
// 读取失败时返回错误；EOF 时残留的半帧被丢弃。
func Read(r io.Reader, fn func(Frame)) error {
	var dec Decoder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				fn(f)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
