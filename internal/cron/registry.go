package cron

import "context"

// Job is one unit of periodic maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends job; nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
