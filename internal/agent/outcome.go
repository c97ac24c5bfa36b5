package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/mentor/internal/llm"
)

// Source tells where a stage's output came from.
type Source string

const (
	// SourceModel means the reply was used as returned.
	SourceModel Source = "model"
	// SourceStatic means the stage produced fixed output without a model call.
	SourceStatic Source = "static"
	// SourceFallbackMalformed means the reply could not be parsed.
	SourceFallbackMalformed Source = "fallback_malformed"
	// SourceFallbackUpstream means the model or index could not be reached.
	SourceFallbackUpstream Source = "fallback_upstream"
)

// Outcome records how a stage produced its result.
type Outcome struct {
	Source Source
	Err    error
}

// Fallback reports whether a fallback value was substituted.
func (o Outcome) Fallback() bool {
	return o.Source == SourceFallbackMalformed || o.Source == SourceFallbackUpstream
}

// Upstream reports whether the stage failed to reach its dependency.
func (o Outcome) Upstream() bool {
	return o.Source == SourceFallbackUpstream
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Source, o.Err)
	}
	return string(o.Source)
}

var errEmptyReply = &llm.ErrInvalidResponse{Err: errors.New("empty reply")}

var (
	modelOutcome  = Outcome{Source: SourceModel}
	staticOutcome = Outcome{Source: SourceStatic}
)

// failure classifies a stage error.
func failure(err error) Outcome {
	if llm.IsMalformed(err) {
		return Outcome{Source: SourceFallbackMalformed, Err: err}
	}
	return Outcome{Source: SourceFallbackUpstream, Err: err}
}

// decode unmarshals a validated structured reply into out.
func decode(resp *llm.Response, out any) error {
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return &llm.ErrInvalidResponse{
			Content: resp.Content,
			Err:     fmt.Errorf("decode reply: %w", err),
		}
	}
	return nil
}
