// Package handler implements the HTTP surface: the OpenAI-compatible chat
// completions endpoint, the model listing, and health checks.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/models"
	"github.com/factly/gopie/internal/stream"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	agent       *agent.Agent
	servedModel string
	timeout     time.Duration
}

// NewChatHandler wires the resolution agent behind the wire protocol.
func NewChatHandler(a *agent.Agent, servedModel string, timeout time.Duration) *ChatHandler {
	return &ChatHandler{agent: a, servedModel: servedModel, timeout: timeout}
}

// ChatCompletions decodes a chat request, runs the resolution graph, and
// answers in streaming or aggregate form depending on the request.
func (h *ChatHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		models.WriteError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	projectIDs, datasetIDs := req.ParseMetadata()
	agentReq := agent.Request{
		Query:      req.LastUserMessage(),
		History:    req.History(),
		ProjectIDs: projectIDs,
		DatasetIDs: datasetIDs,
	}

	model := req.Model
	if model == "" {
		model = h.servedModel
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	state := stream.NewState(model, time.Now().Unix())
	if req.Stream {
		h.streamResponse(ctx, w, state, agentReq)
		return
	}
	h.aggregateResponse(ctx, w, state, agentReq)
}

func (h *ChatHandler) streamResponse(ctx context.Context, w http.ResponseWriter, state *stream.State, req agent.Request) {
	sw, err := stream.NewSSEWriter(w, state)
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The deferred close guarantees the final frame and [DONE] sentinel
	// even when resolution fails partway.
	defer sw.Close()

	if _, err := h.agent.Run(ctx, req, sw.Write); err != nil {
		state.SetError()
		log.Error().Err(err).Msg("query resolution failed mid-stream")
	}
}

func (h *ChatHandler) aggregateResponse(ctx context.Context, w http.ResponseWriter, state *stream.State, req agent.Request) {
	agg := stream.NewAggregator(state)
	if _, err := h.agent.Run(ctx, req, agg.Add); err != nil {
		log.Error().Err(err).Msg("query resolution failed")
		models.WriteError(w, http.StatusInternalServerError, "query resolution failed")
		return
	}
	models.WriteJSON(w, http.StatusOK, agg.Completion())
}
