package runtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// StepPipeline is a job type decomposed into named steps. RunStep receives the
// state produced by the previous step (nil before the first) and returns the
// new state, which is checkpointed before the next step runs. A step may be
// re-run after a crash, so every step must be safe to repeat.
type StepPipeline interface {
	Type() string
	Steps() []string
	RunStep(ctx context.Context, jc *Context, name string, state json.RawMessage) (json.RawMessage, error)
	// OnFailure runs once when the job is failed, before the job row is.
	OnFailure(ctx context.Context, jc *Context, err error)
}

// ResultPipeline is implemented by pipelines that store a result on success.
type ResultPipeline interface {
	Result(state json.RawMessage) (any, error)
}

type NamedStep[S any] struct {
	Name string
	Run  func(ctx context.Context, jc *Context, st *S) error
}

// Pipeline implements StepPipeline over a typed state S that round-trips
// through JSON between steps.
type Pipeline[S any] struct {
	JobType  string
	Init     func(jc *Context) (*S, error)
	StepList []NamedStep[S]
	Failed   func(ctx context.Context, jc *Context, err error)
	ResultOf func(st *S) any
}

func (p *Pipeline[S]) Type() string { return p.JobType }

func (p *Pipeline[S]) Steps() []string {
	out := make([]string, 0, len(p.StepList))
	for _, s := range p.StepList {
		out = append(out, s.Name)
	}
	return out
}

func (p *Pipeline[S]) decode(jc *Context, state json.RawMessage) (*S, error) {
	if len(state) == 0 || string(state) == "null" {
		if p.Init == nil {
			return new(S), nil
		}
		return p.Init(jc)
	}
	st := new(S)
	if err := json.Unmarshal(state, st); err != nil {
		return nil, fmt.Errorf("%s: decode state: %w", p.JobType, err)
	}
	return st, nil
}

func (p *Pipeline[S]) RunStep(ctx context.Context, jc *Context, name string, state json.RawMessage) (json.RawMessage, error) {
	var step *NamedStep[S]
	for i := range p.StepList {
		if p.StepList[i].Name == name {
			step = &p.StepList[i]
			break
		}
	}
	if step == nil {
		return nil, fmt.Errorf("%s: unknown step %q", p.JobType, name)
	}
	st, err := p.decode(jc, state)
	if err != nil {
		return nil, err
	}
	if err := step.Run(ctx, jc, st); err != nil {
		return nil, err
	}
	out, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("%s: encode state: %w", p.JobType, err)
	}
	return out, nil
}

func (p *Pipeline[S]) OnFailure(ctx context.Context, jc *Context, err error) {
	if p.Failed != nil {
		p.Failed(ctx, jc, err)
	}
}

func (p *Pipeline[S]) Result(state json.RawMessage) (any, error) {
	if p.ResultOf == nil || len(state) == 0 {
		return nil, nil
	}
	st := new(S)
	if err := json.Unmarshal(state, st); err != nil {
		return nil, fmt.Errorf("%s: decode state: %w", p.JobType, err)
	}
	return p.ResultOf(st), nil
}
