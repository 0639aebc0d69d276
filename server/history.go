package server

import (
	"errors"
	"net/http"
	"strconv"

	"inkink/history"
	"inkink/publisher"
)

type historyCreateReq struct {
	Topic   string          `json:"topic"`
	Outline history.Outline `json:"outline"`
	TaskID  string          `json:"task_id"`
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, history.ErrNotFound.Error())
		return
	}
	s.logger.Error("history operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req historyCreateReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Topic == "" {
			writeError(w, http.StatusBadRequest, "缺少 topic")
			return
		}
		id, err := s.history.Create(r.Context(), req.Topic, req.Outline, req.TaskID)
		if err != nil {
			s.writeHistoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "record_id": id})
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	res, err := s.history.List(r.Context(), page, pageSize, q.Get("status"))
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"records":     res.Records,
		"total":       res.Total,
		"page":        res.Page,
		"page_size":   res.PageSize,
		"total_pages": res.TotalPages,
	})
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "records": records})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.history.Stats(r.Context())
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": st.Total, "by_status": st.ByStatus})
}

func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		d, err := s.history.Get(r.Context(), id)
		if err != nil {
			s.writeHistoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "record": d})
	case http.MethodPost:
		var patch history.Patch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.history.Update(r.Context(), id, patch); err != nil {
			s.writeHistoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), id); err != nil {
			s.writeHistoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	out, err := publisher.HTML(d)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
