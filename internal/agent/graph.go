package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/models"
	"github.com/factly/gopie/internal/prompts"
	"github.com/factly/gopie/internal/search"
	"github.com/factly/gopie/internal/tools"
)

// Caps bounds every cyclic edge of the resolution graph. Each loop pairs a
// strictly-increasing counter with one of these caps, which is the sole
// termination guarantee.
type Caps struct {
	MaxToolCalls            int
	MaxRetryCount           int
	MaxValidationRetryCount int
	MaxSubQueries           int
	LargeResultRowLimit     int
	LargeResultByteLimit    int
}

// stage identifies one node of the resolution graph. The set is closed;
// the handler table is built at construction so an unmapped stage is a
// startup error, not a runtime lookup failure.
type stage int

const (
	stageClassify stage = iota
	stageIdentify
	stageVerify
	stagePlan
	stageExecute
	stageValidate
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageClassify:
		return "classify"
	case stageIdentify:
		return "identify_datasets"
	case stageVerify:
		return "verify_columns"
	case stagePlan:
		return "plan"
	case stageExecute:
		return "execute"
	case stageValidate:
		return "validate"
	case stageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// stageFunc resolves one stage and names the next. Handlers catch their
// own failures, record them on the aggregate, and always return a next
// stage so the graph can never stall.
type stageFunc func(ctx context.Context, rn *run, sq *SubQuery) stage

// Agent drives the query-resolution graph.
type Agent struct {
	llm      llm.Completer
	store    search.Searcher
	querier  engine.Querier
	prompts  *prompts.Registry
	caps     Caps
	handlers map[stage]stageFunc
}

// New builds an agent and its stage-dispatch table.
func New(client llm.Completer, store search.Searcher, querier engine.Querier, reg *prompts.Registry, caps Caps) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("agent: LLM client is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("agent: prompt registry is required")
	}
	a := &Agent{
		llm:     client,
		store:   store,
		querier: querier,
		prompts: reg,
		caps:    caps,
	}
	a.handlers = map[stage]stageFunc{
		stageClassify: a.classify,
		stageIdentify: a.identify,
		stageVerify:   a.verify,
		stagePlan:     a.plan,
		stageExecute:  a.execute,
		stageValidate: a.validate,
	}
	for st := stageClassify; st < stageDone; st++ {
		if a.handlers[st] == nil {
			return nil, fmt.Errorf("agent: no handler for stage %s", st)
		}
	}
	return a, nil
}

// Request is one chat turn to resolve.
type Request struct {
	Query      string
	History    []models.ChatMessage
	ProjectIDs []string
	DatasetIDs []string
}

// run is the per-request working context. Each request owns its own run;
// nothing here is shared across concurrent requests.
type run struct {
	req     Request
	qr      *QueryResult
	emit    Emitter
	tools   *tools.Registry
	history string

	// cycleMark is the error-log length when the current planning cycle
	// began; errors at or past the mark belong to this cycle.
	cycleMark int
}

// Run resolves a request, emitting chunks as the answer streams. The
// returned aggregate is complete when Run returns.
func (a *Agent) Run(ctx context.Context, req Request, emit Emitter) (*QueryResult, error) {
	start := time.Now()
	qr := &QueryResult{
		OriginalUserQuery: req.Query,
		CreatedAt:         start,
	}
	rn := &run{
		req:     req,
		qr:      qr,
		emit:    emit,
		tools:   tools.New(a.store, a.querier, a.llm, a.prompts, tools.Scope{ProjectIDs: req.ProjectIDs, DatasetIDs: req.DatasetIDs}),
		history: renderHistory(req.History),
	}

	a.decompose(ctx, rn)

	for i := 0; i < len(qr.SubQueries); i++ {
		sq := qr.SubQueries[i]
		log.Info().Int("index", i).Str("sub_query", sq.QueryText).Msg("resolving sub-query")
		a.resolve(ctx, rn, sq)

		if i < len(qr.SubQueries)-1 {
			a.interim(ctx, rn, sq)
			if !a.shouldContinue(ctx, rn, sq) {
				log.Info().Int("index", i).Msg("continuation declined, ending early")
				break
			}
		}
	}

	a.synthesize(ctx, rn)
	qr.ExecutionTime = time.Since(start)
	return qr, nil
}

// resolve walks one sub-query through the graph until a terminal stage.
// The iteration bound is defensive only; every cyclic edge is already
// capped by a retry counter.
func (a *Agent) resolve(ctx context.Context, rn *run, sq *SubQuery) {
	maxSteps := 6 * (a.caps.MaxRetryCount + a.caps.MaxValidationRetryCount + 2)
	st := stageClassify
	for steps := 0; st != stageDone && steps < maxSteps; steps++ {
		next := a.handlers[st](ctx, rn, sq)
		log.Debug().Str("stage", st.String()).Str("next", next.String()).Msg("stage transition")
		st = next
	}
	if st != stageDone {
		rn.qr.LogError("graph", "resolution exceeded maximum step count")
	}
}

// cycleError returns the most recent error logged in the current planning
// cycle, or "". Replan and validation decisions treat a non-empty value as
// an error-kind last step.
func (rn *run) cycleError() string {
	if len(rn.qr.ErrorLog) <= rn.cycleMark {
		return ""
	}
	e := rn.qr.ErrorLog[len(rn.qr.ErrorLog)-1]
	return e.Origin + ": " + e.Message
}

func renderHistory(history []models.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
