package server

import (
	"errors"
	"net/http"
	"strings"

	"inkink/config"
	"inkink/generator"
	"inkink/pipeline"
)

// --- Config ---

type providerView struct {
	Type         string `json:"type"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url"`
	APIKeyMasked string `json:"api_key_masked"`
}

type purposeView struct {
	ActiveProvider string                  `json:"active_provider"`
	Providers      map[string]providerView `json:"providers"`
}

type configView struct {
	TextGeneration  purposeView `json:"text_generation"`
	ImageGeneration purposeView `json:"image_generation"`
}

func viewOf(p config.Provider) purposeView {
	return purposeView{
		ActiveProvider: p.Name,
		Providers: map[string]providerView{
			p.Name: {
				Type:         p.Type,
				Model:        p.Model,
				BaseURL:      p.BaseURL,
				APIKeyMasked: config.MaskKey(p.APIKey),
			},
		},
	}
}

func (s *Server) configView() configView {
	return configView{
		TextGeneration:  viewOf(s.cfg.Text),
		ImageGeneration: viewOf(s.cfg.Image),
	}
}

// handleConfig 只回显配置；POST 不做持久化。
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": s.configView()})
		return
	}
	var input map[string]any
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "配置已保存（当前会话）",
		"config":   s.configView(),
		"received": input,
	})
}

type connectionTestReq struct {
	Type         string `json:"type"`
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
}

func (s *Server) handleConfigTest(w http.ResponseWriter, r *http.Request) {
	var req connectionTestReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 未填写的字段沿用当前配置。
	base := s.cfg.Text
	if req.Type == config.ImageTypeAPI || req.Type == config.ImageTypeChat {
		base = s.cfg.Image
	}
	settings := base.Settings()
	if req.Type != "" {
		settings.Type = req.Type
	}
	if req.ProviderName != "" {
		settings.Provider = req.ProviderName
	}
	if req.APIKey != "" {
		settings.APIKey = strings.TrimSpace(req.APIKey)
	}
	if req.BaseURL != "" {
		settings.BaseURL = strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	}
	if req.Model != "" {
		settings.Model = req.Model
	}
	settings.MaxRetries = 0

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.testConn(ctx, settings); err != nil {
		s.logger.Warn("connection test failed", "provider", settings.Provider, "model", settings.Model, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": pipeline.ErrorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "连接成功：" + settings.Model})
}

// --- Generation ---

type generateTextReq struct {
	Topic  string   `json:"topic"`
	Images []string `json:"images"`
}

func (s *Server) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	var req generateTextReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.gen.GenerateOutline(ctx, generator.OutlineRequest{Topic: req.Topic, Images: req.Images})
	if err != nil {
		s.writeGenerationError(w, s.cfg.Text, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"outline":    res.Outline,
		"pages":      generator.BuildPages(res.Outline),
		"has_images": res.HasImages,
		"provider":   res.Provider,
		"model":      res.Model,
	})
}

type generateImageReq struct {
	generator.ImageRequest
	PageIndex *int `json:"page_index,omitempty"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.gen.GenerateImage(ctx, req.ImageRequest)
	if err != nil {
		s.writeGenerationError(w, s.cfg.Image, err)
		return
	}
	index := -1
	if req.PageIndex != nil {
		index = *req.PageIndex
	}
	s.tasks.record(req.TaskID, index, res.URL)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"image_base64": res.Base64,
		"image_url":    res.URL,
		"size":         res.Size,
		"provider":     res.Provider,
		"model":        res.Model,
	})
}

// writeGenerationError 把生成错误映射为 HTTP 状态码与响应体。
func (s *Server) writeGenerationError(w http.ResponseWriter, p config.Provider, err error) {
	var verr *generator.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case generator.IsConfigError(err):
		writeError(w, http.StatusInternalServerError, generator.ErrMissingCredential.Error())
	default:
		s.logger.Error("generation failed", "provider", p.Name, "model", p.Model, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":        false,
			"error":          pipeline.ErrorMessage(err),
			"provider":       p.Name,
			"api_key_masked": config.MaskKey(p.APIKey),
		})
	}
}

// --- Tasks ---

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	images, ok := s.tasks.get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "任务不存在或已过期")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task_id": taskID, "images": images})
}
