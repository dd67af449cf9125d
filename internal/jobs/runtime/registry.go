package runtime

import (
	"fmt"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]StepPipeline
}

func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]StepPipeline)}
}

func (r *Registry) Register(p StepPipeline) error {
	if p == nil {
		return fmt.Errorf("nil pipeline")
	}
	t := p.Type()
	if t == "" {
		return fmt.Errorf("pipeline Type() is empty")
	}
	if len(p.Steps()) == 0 {
		return fmt.Errorf("pipeline %s has no steps", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pipelines[t]; exists {
		return fmt.Errorf("pipeline already registered for job_type=%s", t)
	}
	r.pipelines[t] = p
	return nil
}

func (r *Registry) Get(jobType string) (StepPipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[jobType]
	return p, ok
}
