package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/models"
)

// SSEWriter emits chat.completion.chunk frames over a Server-Sent-Events
// response. The stream always terminates with a final finish-reason frame
// followed by the [DONE] sentinel, including when the upstream fails.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	state   *State
	closed  bool
}

// NewSSEWriter prepares the response for event streaming.
func NewSSEWriter(w http.ResponseWriter, state *State) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher, state: state}, nil
}

// Write transcodes and sends one internal chunk.
func (s *SSEWriter) Write(chunk agent.Chunk) {
	if s.closed {
		return
	}
	for _, frame := range s.state.Frames(chunk) {
		s.send(frame)
	}
}

// Close sends the final frame and the [DONE] sentinel. Safe to call once;
// the handler defers it so the stream can never be left unterminated.
func (s *SSEWriter) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.send(s.state.FinalFrame())
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

func (s *SSEWriter) send(frame models.ChatCompletionChunk) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("marshal stream frame")
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}
