package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/ensemble/internal/agent"
	"github.com/nextlevelbuilder/ensemble/internal/checkpoint"
	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/hitl"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/state"
	"github.com/nextlevelbuilder/ensemble/internal/telemetry"
)

// Outcome is the result of one pipeline invocation. A suspended outcome
// means an approval request was published and the state checkpointed; the
// caller resumes with the operator's response.
type Outcome struct {
	Suspended bool
	ThreadID  string
	Executed  int
}

// Pipeline is one tick's processing chain: emotion, personality, persona
// fan-out, scheduling, the optional approval gate, and execution.
type Pipeline struct {
	cfg         *config.Config
	mem         *memory.Store
	agents      []personas.AgentConfig
	roster      []*personas.Persona
	emotion     *EmotionAnalyzer
	personality *PersonalityAnalyzer
	subgraph    *agent.Subgraph
	executor    *Executor
	approvals   *hitl.State
	checkpoints *checkpoint.Store
	tracer      trace.Tracer
	log         *slog.Logger
}

func NewPipeline(
	cfg *config.Config,
	llm providers.Client,
	mem *memory.Store,
	agents []personas.AgentConfig,
	executor *Executor,
	approvals *hitl.State,
	checkpoints *checkpoint.Store,
	chatID string,
) *Pipeline {
	roster := personas.Personas(agents)
	return &Pipeline{
		cfg:         cfg,
		mem:         mem,
		agents:      agents,
		roster:      roster,
		emotion:     NewEmotionAnalyzer(llm, cfg, roster),
		personality: NewPersonalityAnalyzer(llm, cfg, mem, roster, chatID),
		subgraph:    agent.New(llm, cfg),
		executor:    executor,
		approvals:   approvals,
		checkpoints: checkpoints,
		tracer:      telemetry.Tracer("supervisor"),
		log:         slog.Default().With("component", "pipeline"),
	}
}

type branchResult struct {
	name   string
	action *state.SelectedAction
}

// Invoke runs one full tick against the shared state. When the approval
// gate is enabled and produced pending items, the state is checkpointed,
// the request published, and a suspended outcome returned.
func (p *Pipeline) Invoke(ctx context.Context, threadID string, st *state.SupervisorState) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.invoke",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	p.emotion.Analyze(ctx, st)
	p.personality.Analyze(ctx, st)
	p.fanOut(ctx, st)
	Schedule(st)

	if p.gateEnabled() && len(st.ExecutionQueue) > 0 {
		if err := p.suspend(ctx, threadID, st); err != nil {
			return nil, err
		}
		return &Outcome{Suspended: true, ThreadID: threadID}, nil
	}

	executed := p.executor.Execute(ctx, st)
	return &Outcome{ThreadID: threadID, Executed: executed}, nil
}

// Resume restores a suspended invocation from its checkpoint, applies the
// operator's decisions, and runs the executor on what survived.
func (p *Pipeline) Resume(ctx context.Context, threadID string, resp *hitl.OperatorResponse) (*state.SupervisorState, *Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.resume",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	st, err := p.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("resume: %w", err)
	}
	ApplyOperatorResponse(st, resp, p.mem)
	executed := p.executor.Execute(ctx, st)

	if err := p.approvals.Clear(); err != nil {
		p.log.Warn("clearing approval state failed", "error", err)
	}
	if err := p.checkpoints.Delete(ctx, threadID); err != nil {
		p.log.Warn("deleting checkpoint failed", "thread", threadID, "error", err)
	}
	return st, &Outcome{ThreadID: threadID, Executed: executed}, nil
}

// fanOut runs every persona subgraph concurrently over a snapshot of the
// window and merges the results back through the reducers in arrival order.
func (p *Pipeline) fanOut(ctx context.Context, st *state.SupervisorState) {
	results := make(chan branchResult, len(p.agents))
	var wg sync.WaitGroup
	for _, ac := range p.agents {
		wg.Add(1)
		go func(ac personas.AgentConfig) {
			defer wg.Done()
			ctx, span := p.tracer.Start(ctx, "persona."+ac.Name)
			defer span.End()
			ast := &agent.State{
				RecentMessages: state.CloneMessages(st.RecentMessages),
				GroupSentiment: st.GroupSentiment,
				GroupMetadata:  st.GroupMetadata,
				Config:         ac,
				AllPersonas:    p.roster,
				RecentActions:  st.AgentsRecentActions[ac.Name],
			}
			results <- branchResult{name: ac.Name, action: p.subgraph.Run(ctx, ast)}
		}(ac)
	}
	wg.Wait()
	close(results)

	for r := range results {
		st.SelectedActions = state.MergeSelectedActions(st.SelectedActions, state.AppendActions(*r.action))
		if r.action.Status == state.StatusSuccess || r.action.Status == state.StatusMaxRetriesReached {
			rec := state.ActionRecord{
				TriggerID:            r.action.TriggerID,
				TriggerJustification: r.action.TriggerJustification,
				Target:               r.action.Target,
				ActionID:             r.action.ID,
				ActionPurpose:        r.action.Purpose,
				ActionContent:        r.action.StyledResponse,
			}
			st.AgentsRecentActions = state.MergeAgentActions(st.AgentsRecentActions,
				map[string][]state.ActionRecord{r.name: {rec}})
		}
	}
}

func (p *Pipeline) gateEnabled() bool {
	return p.cfg.HITL.Enabled && p.approvals != nil && p.checkpoints != nil
}

func (p *Pipeline) suspend(ctx context.Context, threadID string, st *state.SupervisorState) error {
	if err := p.checkpoints.Save(ctx, threadID, st); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	if err := p.approvals.SetPending(threadID, BuildApprovalRequest(st)); err != nil {
		return fmt.Errorf("publish approval request: %w", err)
	}
	p.log.Info("suspended for operator approval",
		"thread", threadID, "pending", len(st.ExecutionQueue))
	return nil
}
