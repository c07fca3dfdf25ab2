package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/textassist"
	"github.com/raaihank/vn-text-trim/internal/websocket"
)

// CleanRequest is the JSON body of /api/v1/clean
type CleanRequest struct {
	Text string `json:"text"`
}

// CleanResponse is returned by /api/v1/clean. Text holds the input when
// nothing changed.
type CleanResponse struct {
	Changed bool     `json:"changed"`
	Text    string   `json:"text"`
	Stages  []string `json:"stages,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

// InfoResponse is returned by /info
type InfoResponse struct {
	Name              string     `json:"name"`
	Version           string     `json:"version"`
	Mode              string     `json:"mode"`
	RuleCount         int        `json:"rule_count"`
	Fingerprint       string     `json:"fingerprint"`
	RepetitionRemoval bool       `json:"repetition_removal"`
	DialogueExtract   bool       `json:"dialogue_extract"`
	JapaneseOnly      bool       `json:"japanese_only"`
	Uptime            string     `json:"uptime"`
	TotalCleaned      int64      `json:"total_cleaned"`
	TotalChanged      int64      `json:"total_changed"`
	Cache             CacheStats `json:"cache"`
	TextAssistVersion uint32     `json:"textassist_version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	rs := s.engine.RuleSet()
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:              "vn-text-trim",
		Version:           s.version,
		Mode:              string(rs.Mode),
		RuleCount:         len(rs.Substitutions),
		Fingerprint:       rs.Fingerprint(),
		RepetitionRemoval: rs.RepetitionRemoval,
		DialogueExtract:   rs.Dialogue != nil,
		JapaneseOnly:      rs.JapaneseOnly,
		Uptime:            time.Since(s.startedAt).Round(time.Second).String(),
		TotalCleaned:      s.totalCleaned.Load(),
		TotalChanged:      s.totalChanged.Load(),
		Cache:             s.memo.stats(r.Context()),
		TextAssistVersion: textassist.PluginVersion,
	})
}

// handleClean accepts JSON {"text": ...} or a text/plain body
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeBodyError(w, err)
		return
	}

	var text string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json", "", "text/plain":
	default:
		writeError(w, http.StatusUnsupportedMediaType, "expected application/json or text/plain")
		return
	}

	// encoding/json would turn invalid bytes into U+FFFD, so check the raw
	// body for both content types
	if !utf8.Valid(body) {
		writeError(w, http.StatusBadRequest, "body is not valid UTF-8")
		return
	}

	if mediaType == "application/json" {
		var req CleanRequest
		if err := json.Unmarshal(body, &req); err != nil {
			log.Debug("Invalid JSON body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		text = req.Text
	} else {
		text = string(body)
	}

	result := s.process(r.Context(), "api", requestID, text)

	writeJSON(w, http.StatusOK, CleanResponse{
		Changed: result.Changed,
		Text:    result.Text,
		Stages:  result.StageNames(),
		Skipped: result.Skipped,
	})
}

// handleTextAssist takes a raw UTF-16LE string and answers 204 when the
// host should keep its own
func (s *Server) handleTextAssist(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeBodyError(w, err)
		return
	}

	engine := cleanFunc(func(text string) (string, bool) {
		result := s.process(r.Context(), "textassist", requestID, text)
		return result.Text, result.Changed
	})

	wide, changed, err := textassist.Modify(engine, body)
	switch {
	case errors.Is(err, textassist.ErrOddLength), errors.Is(err, textassist.ErrInvalidUTF16):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.WithRequestID(requestID).Error("Failed to convert wide string", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to convert wide string")
		return
	case !changed:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(wide)
}

// cleanFunc lets a closure over the cached pipeline stand in for the engine
type cleanFunc func(text string) (string, bool)

func (f cleanFunc) Clean(text string) (string, bool) { return f(text) }

// process runs text through the engine (via the cache), then logs and
// publishes the outcome
func (s *Server) process(ctx context.Context, source, requestID, text string) cleaner.Result {
	start := time.Now()
	result := s.memo.process(ctx, s.engine, text)
	elapsed := time.Since(start)

	s.totalCleaned.Add(1)
	if result.Changed {
		s.totalChanged.Add(1)
	}

	s.logger.WithRequestID(requestID).LogClean(source, text, result.Text, result.Changed, result.StageNames())

	if s.wsHub != nil {
		event := websocket.CleanEvent{
			Source:         source,
			RequestID:      requestID,
			Changed:        result.Changed,
			Skipped:        result.Skipped,
			Stages:         result.StageNames(),
			OriginalLength: len(text),
			CleanedLength:  len(result.Text),
			ProcessingMS:   float64(elapsed.Microseconds()) / 1000,
		}
		if result.Changed {
			event.Cleaned = result.Text
		}
		s.wsHub.PublishClean(event)
	}

	return result
}

// handleClearCache drops every cached result
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.memo.clear(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to clear cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"shared_deleted": deleted})
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "failed to read request body")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
