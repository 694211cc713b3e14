package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// WriteJSONResponse writes a JSON body with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error envelope, deriving
// the HTTP status from the error type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders prepares the response for Server-Sent-Events streaming.
// X-Accel-Buffering disables buffering in nginx-style intermediaries so
// keep-alive frames reach the client promptly.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// StreamWriter emits SSE frames for one streaming response. It serializes
// writes from the stream controller and the keep-alive scheduler and
// tracks the time of the last frame so the scheduler can fill silent
// gaps only.
type StreamWriter struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	flusher   http.Flusher
	lastWrite time.Time
	closed    bool
}

// NewStreamWriter wraps a response writer for SSE output. SetSSEHeaders
// is applied and the header block is flushed immediately.
func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	SetSSEHeaders(w)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	return &StreamWriter{
		w:         w,
		flusher:   flusher,
		lastWrite: time.Now(),
	}
}

// WriteChunk writes one chat completion chunk as an SSE data frame.
func (s *StreamWriter) WriteChunk(chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal SSE chunk: %w", err)
	}
	return s.writeFrame(fmt.Sprintf("data: %s\n\n", data))
}

// WriteComment writes an SSE comment frame. Comments carry no payload
// and are ignored by compliant clients; the keep-alive scheduler uses
// them to keep intermediaries from treating the connection as idle.
func (s *StreamWriter) WriteComment(text string) error {
	return s.writeFrame(fmt.Sprintf(": %s\n\n", text))
}

// WriteDone writes the literal [DONE] sentinel and marks the stream
// closed. Further writes return an error.
func (s *StreamWriter) WriteDone() error {
	if err := s.writeFrame("data: [DONE]\n\n"); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// WriteError writes an error envelope as an SSE data frame, for failures
// that occur after the stream has started.
func (s *StreamWriter) WriteError(errResp *types.ErrorResponse) error {
	data, err := json.Marshal(map[string]interface{}{"error": errResp.Error})
	if err != nil {
		return fmt.Errorf("marshal SSE error: %w", err)
	}
	return s.writeFrame(fmt.Sprintf("data: %s\n\n", data))
}

// LastWrite returns the time of the most recent frame.
func (s *StreamWriter) LastWrite() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite
}

func (s *StreamWriter) writeFrame(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("write SSE frame: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.lastWrite = time.Now()
	return nil
}
