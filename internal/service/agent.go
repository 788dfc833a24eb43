package service

import (
	"context"
	"fmt"

	"github.com/docsage/docsage/internal/domain"
)

// AgentPhase is one state of the reasoning agent's finite-state machine.
// The graph is acyclic: a single pass through EVALUATE cannot re-enter
// RETRIEVE, so the language model is never invoked without a prior
// sufficiency check.
type AgentPhase string

const (
	PhaseStart    AgentPhase = "START"
	PhaseRetrieve AgentPhase = "RETRIEVE"
	PhaseEvaluate AgentPhase = "EVALUATE"
	PhaseGenerate AgentPhase = "GENERATE"
	PhaseDone     AgentPhase = "DONE"
	// PhaseRefuse is the terminal for a content judgment: the retrieved
	// context cannot ground an answer.
	PhaseRefuse AgentPhase = "REFUSE"
	// PhaseFailed is the terminal for an infrastructure fault, reported to
	// the caller as retryable. Distinct from REFUSE.
	PhaseFailed AgentPhase = "FAILED"
)

// AgentConfig holds the agent's policy knobs.
type AgentConfig struct {
	// K is the number of chunks requested from the retriever.
	K int
	// AnswerMinRelevance is the answerability threshold, stricter than the
	// retrieval-admission threshold.
	AnswerMinRelevance float64
	// MinContextChars is the minimum aggregate retrieved text length for a
	// sufficient context.
	MinContextChars int
	// Temperature is the LLM sampling temperature; kept low for
	// near-deterministic grounded answers.
	Temperature float32
	// MaxTokens bounds the completion length.
	MaxTokens int
}

// DefaultAgentConfig provides the default agent policy.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		K:                  5,
		AnswerMinRelevance: 0.89,
		MinContextChars:    200,
		Temperature:        0.1,
		MaxTokens:          512,
	}
}

// agentState is the ephemeral per-query state that flows through the
// machine.
type agentState struct {
	question   string
	ownerID    string
	k          int
	results    []*domain.RetrievalResult
	sufficient bool
	answer     string
	trace      []string
	failure    error
}

// AgentResult is the outcome of one agent run.
type AgentResult struct {
	Question string
	Answer   string
	Phase    AgentPhase
	Trace    []string
	Results  []*domain.RetrievalResult
}

// ChunkRetriever is the retrieval dependency of the agent.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, question, ownerID string, k int) ([]*domain.RetrievalResult, error)
}

// Agent decides whether retrieved context suffices to answer a question
// before it ever invokes the language model.
type Agent struct {
	retriever ChunkRetriever
	llm       LLMClient
	cfg       AgentConfig
}

// NewAgent creates a new Agent instance.
func NewAgent(retriever ChunkRetriever, llm LLMClient, cfg AgentConfig) *Agent {
	if cfg.K <= 0 {
		cfg.K = DefaultAgentConfig().K
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAgentConfig().MaxTokens
	}
	return &Agent{
		retriever: retriever,
		llm:       llm,
		cfg:       cfg,
	}
}

// Run executes the state machine for one question. A REFUSE outcome is a
// normal response; a FAILED outcome returns the underlying retryable error
// alongside a result carrying the trace.
func (a *Agent) Run(ctx context.Context, question, ownerID string, k int) (*AgentResult, error) {
	if k <= 0 {
		k = a.cfg.K
	}
	state := &agentState{
		question: question,
		ownerID:  ownerID,
		k:        k,
	}

	phase := PhaseStart
	for !isTerminal(phase) {
		if err := ctx.Err(); err != nil {
			state.failure = domain.NewDomainErrorWithCause(domain.ErrCodeLLMUnavailable, "query cancelled", err)
			phase = PhaseFailed
			break
		}

		next, err := a.step(ctx, phase, state)
		if err != nil {
			return a.result(state, PhaseFailed), err
		}
		phase = next
	}

	result := a.result(state, phase)
	if phase == PhaseFailed {
		return result, state.failure
	}
	return result, nil
}

// step advances the machine by one transition and returns the next phase.
// New behavior (query reformulation, multi-hop retrieval) is added as new
// phases here, not as nested branching.
func (a *Agent) step(ctx context.Context, phase AgentPhase, state *agentState) (AgentPhase, error) {
	switch phase {
	case PhaseStart:
		return PhaseRetrieve, nil
	case PhaseRetrieve:
		return a.retrieve(ctx, state)
	case PhaseEvaluate:
		return a.evaluate(state), nil
	case PhaseGenerate:
		return a.generate(ctx, state), nil
	default:
		return PhaseFailed, fmt.Errorf("no transition from phase %s", phase)
	}
}

// retrieve always transitions to EVALUATE: an empty result set is valid
// data, not a flow failure. Only input validation and infrastructure faults
// abort the run.
func (a *Agent) retrieve(ctx context.Context, state *agentState) (AgentPhase, error) {
	results, err := a.retriever.Retrieve(ctx, state.question, state.ownerID, state.k)
	if err != nil {
		state.failure = err
		state.trace = append(state.trace, fmt.Sprintf("retrieval failed: %v", err))
		return PhaseFailed, err
	}

	state.results = results
	state.trace = append(state.trace, fmt.Sprintf("retrieved %d chunks for question", len(results)))
	return PhaseEvaluate, nil
}

// evaluate computes the sufficiency verdict: at least one result must clear
// the answerability threshold and the aggregate context must be long enough.
func (a *Agent) evaluate(state *agentState) AgentPhase {
	best := 0.0
	for _, r := range state.results {
		if r.Relevance > best {
			best = r.Relevance
		}
	}
	contextChars := domain.TotalContextChars(state.results)

	state.sufficient = best >= a.cfg.AnswerMinRelevance && contextChars >= a.cfg.MinContextChars

	if state.sufficient {
		state.trace = append(state.trace, fmt.Sprintf(
			"context sufficient: best relevance %.4f >= %.4f, context %d chars >= %d",
			best, a.cfg.AnswerMinRelevance, contextChars, a.cfg.MinContextChars))
		return PhaseGenerate
	}

	state.trace = append(state.trace, fmt.Sprintf(
		"context insufficient: best relevance %.4f, threshold %.4f, context %d chars, minimum %d; refusing",
		best, a.cfg.AnswerMinRelevance, contextChars, a.cfg.MinContextChars))
	state.answer = RefusalAnswer
	// Refusals carry no sources: low-confidence chunks would read as
	// citations for an answer that was never generated.
	state.results = nil
	return PhaseRefuse
}

// generate invokes the language model with the grounded prompt. An LLM
// fault moves to FAILED, never to REFUSE.
func (a *Agent) generate(ctx context.Context, state *agentState) AgentPhase {
	contexts := make([]string, len(state.results))
	for i, r := range state.results {
		contexts[i] = r.Chunk.Text
	}

	prompt := buildGroundedPrompt(state.question, contexts)
	answer, err := a.llm.Complete(ctx, prompt, a.cfg.Temperature, a.cfg.MaxTokens)
	if err != nil {
		state.failure = err
		state.trace = append(state.trace, fmt.Sprintf("generation failed: %v", err))
		return PhaseFailed
	}

	state.answer = answer
	state.trace = append(state.trace, fmt.Sprintf("generated answer from %d context chunks", len(contexts)))
	return PhaseDone
}

func (a *Agent) result(state *agentState, phase AgentPhase) *AgentResult {
	return &AgentResult{
		Question: state.question,
		Answer:   state.answer,
		Phase:    phase,
		Trace:    state.trace,
		Results:  state.results,
	}
}

func isTerminal(phase AgentPhase) bool {
	switch phase {
	case PhaseDone, PhaseRefuse, PhaseFailed:
		return true
	}
	return false
}
