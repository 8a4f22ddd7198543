package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"livein/internal/core"
)

const maxBodyBytes = 64 * 1024

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A second decode catching anything means trailing garbage.
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// requesterUID resolves the calling member from the X-User-ID header.
func (s *Server) requesterUID(r *http.Request) (core.Member, bool) {
	uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if uid == "" {
		return core.Member{}, false
	}
	return s.household.MemberByUID(uid)
}

// timeframeParam reads ?timeframe= with a month default.
func timeframeParam(r *http.Request) (core.Timeframe, error) {
	v := strings.TrimSpace(r.URL.Query().Get("timeframe"))
	if v == "" {
		return core.TimeframeMonth, nil
	}
	tf := core.Timeframe(v)
	if err := tf.Validate(); err != nil {
		return "", err
	}
	return tf, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
