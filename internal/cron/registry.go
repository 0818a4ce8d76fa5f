package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one housekeeping task run on every cron tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs keyed by name, preserving registration order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register rejects nil jobs, blank names and duplicates.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("cron job is nil")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job name is required")
	}
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists job names for startup logging.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Name())
	}
	return out
}
