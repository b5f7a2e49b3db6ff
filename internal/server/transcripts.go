package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mtkresearch/breeze-asr-go/internal/transcript"
)

// defaultQueryLimit caps transcript query responses when the client does not
// ask for a limit.
const defaultQueryLimit = 100

// transcriptJSON is the wire form of a [transcript.Entry].
type transcriptJSON struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
	Reason    string `json:"reason"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func entriesJSON(entries []transcript.Entry) []transcriptJSON {
	out := make([]transcriptJSON, len(entries))
	for i, e := range entries {
		out[i] = transcriptJSON{
			SessionID: e.SessionID,
			Seq:       e.Seq,
			StartMS:   e.Start.Milliseconds(),
			EndMS:     e.End.Milliseconds(),
			Reason:    e.Reason,
			Text:      e.Text,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	return out
}

// handleTranscriptList serves GET /v1/transcripts?session_id=…&limit=…,
// returning a session's transcript entries in segment order.
func (s *Server) handleTranscriptList(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.store.List(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("transcript list failed", "session_id", sessionID, "err", err)
		http.Error(w, "transcript query failed", http.StatusInternalServerError)
		return
	}
	writeEntries(w, entries)
}

// handleTranscriptSearch serves GET /v1/transcripts/search?q=…&limit=…,
// returning matching entries newest-first across all sessions.
func (s *Server) handleTranscriptSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.store.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("transcript search failed", "q", query, "err", err)
		http.Error(w, "transcript query failed", http.StatusInternalServerError)
		return
	}
	writeEntries(w, entries)
}

// queryLimit parses the limit query parameter. A missing value falls back to
// [defaultQueryLimit]; a malformed or negative one is a 400.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultQueryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeEntries(w http.ResponseWriter, entries []transcript.Entry) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(entriesJSON(entries)); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}
