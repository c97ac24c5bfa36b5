// Package graph runs a learner query through the tutoring stages.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mentor/internal/agent"
	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"
)

// Config controls a run of the graph.
type Config struct {
	Agent agent.Config

	// StrictUpstream makes an unreachable model in a generative stage fail
	// the run instead of substituting the stage fallback. Retrieval
	// failures never fail a run.
	StrictUpstream bool

	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration
}

// DefaultConfig returns the stock stage settings with lenient upstream
// handling and no run timeout.
func DefaultConfig() Config {
	return Config{Agent: agent.DefaultConfig()}
}

// StageError is returned when a stage fails under StrictUpstream.
type StageError struct {
	Node model.Node
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Node, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Assistant holds the stages. It keeps no per-run state, so one
// Assistant serves concurrent runs when the provider and index do.
type Assistant struct {
	cfg        Config
	classifier *agent.Classifier
	retriever  *agent.Retriever
	explainer  *agent.Explainer
	quiz       *agent.QuizGenerator
	evaluator  *agent.Evaluator
}

// New builds an Assistant. index may be nil, in which case every
// retrieval yields agent.NoContextPlaceholder.
func New(provider llm.Provider, index agent.Searcher, cfg Config) *Assistant {
	cfg.Agent = cfg.Agent.WithDefaults()
	return &Assistant{
		cfg:        cfg,
		classifier: agent.NewClassifier(provider, cfg.Agent.Classify),
		retriever:  agent.NewRetriever(index, cfg.Agent.TopK),
		explainer:  agent.NewExplainer(provider, cfg.Agent.Explain),
		quiz:       agent.NewQuizGenerator(provider, cfg.Agent.Quiz),
		evaluator:  agent.NewEvaluator(provider, cfg.Agent.Evaluate),
	}
}

// ProcessQuery runs query from the first stage to the end. answers maps
// zero-based question indices to the learner's answers and may be nil.
//
// On error the partially filled state is returned alongside it.
func (a *Assistant) ProcessQuery(ctx context.Context, query string, answers map[int]string) (*model.State, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	state := model.NewState(query, answers)
	state.RunID = uuid.NewString()
	log := slog.With("run_id", state.RunID)
	log.Info("processing query", "query", query, "answers", len(state.StudentAnswers))

	start := time.Now()
	visited := make(map[model.Node]bool)
	for node := model.NodeQueryUnderstanding; node != model.NodeEnd; node = a.next(node, state) {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if visited[node] {
			return state, fmt.Errorf("stage %s reached twice", node)
		}
		visited[node] = true
		state.Trace = append(state.Trace, node)

		o := a.run(ctx, node, state)
		state.Diagnostics = append(state.Diagnostics, diagnostic(node, o))
		log.Debug("stage finished", "node", node, "source", o.Source)

		if a.cfg.StrictUpstream && o.Upstream() && node != model.NodeRetrieval {
			return state, &StageError{Node: node, Err: o.Err}
		}
	}

	log.Info("query processed",
		"intent", state.Intent,
		"topic", state.Topic,
		"trace", state.Trace,
		"questions", len(state.Quiz),
		"duration_ms", time.Since(start).Milliseconds())
	return state, nil
}

// run executes one stage and writes only the fields it owns.
func (a *Assistant) run(ctx context.Context, node model.Node, state *model.State) agent.Outcome {
	switch node {
	case model.NodeQueryUnderstanding:
		c, o := a.classifier.Classify(ctx, state.Query)
		state.Intent = c.Intent
		state.Topic = c.Topic
		state.Difficulty = c.Difficulty
		return o

	case model.NodeRetrieval:
		topic := state.Topic
		if topic == "" {
			topic = state.Query
		}
		material, o := a.retriever.Retrieve(ctx, topic)
		state.Context = material
		return o

	case model.NodeTeaching:
		text, o := a.explainer.Explain(ctx, state.Query, state.Context, state.Intent, state.Difficulty)
		state.Explanation = text
		return o

	case model.NodeQuizGeneration:
		n := agent.QuestionCount(state.Query, a.cfg.Agent.DefaultQuestions, a.cfg.Agent.MaxQuestions)
		quiz, o := a.quiz.Generate(ctx, state.Topic, state.Context, state.Difficulty, n)
		state.Quiz = quiz
		return o

	case model.NodeEvaluate:
		summary, items := a.evaluator.EvaluateQuiz(ctx, state.Quiz, state.StudentAnswers, state.Context)
		state.Evaluation = &summary
		return combine(items)
	}
	return agent.Outcome{Source: agent.SourceStatic}
}

// next is the routing table.
func (a *Assistant) next(node model.Node, state *model.State) model.Node {
	switch node {
	case model.NodeQueryUnderstanding:
		return model.NodeRetrieval
	case model.NodeRetrieval:
		return afterRetrieval(state)
	case model.NodeTeaching:
		return afterTeaching(state)
	case model.NodeQuizGeneration:
		return afterQuiz(state)
	default:
		return model.NodeEnd
	}
}

func afterRetrieval(state *model.State) model.Node {
	switch {
	case state.Intent == model.IntentQuiz:
		return model.NodeQuizGeneration
	case state.Intent.Teaches():
		return model.NodeTeaching
	default:
		return model.NodeEnd
	}
}

func afterTeaching(state *model.State) model.Node {
	if state.Intent == model.IntentPractice {
		return model.NodeQuizGeneration
	}
	return model.NodeEnd
}

func afterQuiz(state *model.State) model.Node {
	if len(state.StudentAnswers) > 0 {
		return model.NodeEvaluate
	}
	return model.NodeEnd
}

// EvaluateQuizDirectly scores answers against a caller-supplied quiz
// without classification or retrieval. material may be empty.
func (a *Assistant) EvaluateQuizDirectly(ctx context.Context, quiz []model.QuestionRecord, answers map[int]string, material string) (model.EvaluationSummary, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	summary, items := a.evaluator.EvaluateQuiz(ctx, quiz, answers, material)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if o := combine(items); a.cfg.StrictUpstream && o.Upstream() {
		return summary, &StageError{Node: model.NodeEvaluate, Err: o.Err}
	}
	return summary, nil
}

// combine reduces per-item outcomes to the most severe one: upstream
// failures, then malformed replies, then model output.
func combine(items []agent.ItemOutcome) agent.Outcome {
	best := agent.Outcome{Source: agent.SourceStatic}
	rank := map[agent.Source]int{
		agent.SourceStatic:            0,
		agent.SourceModel:             1,
		agent.SourceFallbackMalformed: 2,
		agent.SourceFallbackUpstream:  3,
	}
	for _, it := range items {
		if rank[it.Outcome.Source] > rank[best.Source] {
			best = it.Outcome
		}
	}
	return best
}

func diagnostic(node model.Node, o agent.Outcome) model.StageDiagnostic {
	d := model.StageDiagnostic{Node: node, Source: string(o.Source)}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}
