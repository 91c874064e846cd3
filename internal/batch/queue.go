package batch

import (
	"fmt"
	"sync"

	"github.com/conneroisu/casefiler/internal/errors"
)

// Stats counts jobs by status.
type Stats struct {
	Total      int `json:"total" yaml:"total"`
	Pending    int `json:"pending" yaml:"pending"`
	Processing int `json:"processing" yaml:"processing"`
	Completed  int `json:"completed" yaml:"completed"`
	Failed     int `json:"failed" yaml:"failed"`
}

// ValidationSummary is the outcome of ValidateAll.
type ValidationSummary struct {
	Valid       int                 `json:"valid" yaml:"valid"`
	Invalid     int                 `json:"invalid" yaml:"invalid"`
	TotalErrors int                 `json:"total_errors" yaml:"total_errors"`
	Errors      map[string][]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Queue is an ordered, thread-safe list of jobs. Getters return clones;
// changes go through the Queue so subscribers are notified.
type Queue struct {
	mu        sync.RWMutex
	jobs      []*Job
	current   int
	listeners []func()
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{current: -1}
}

// OnChange registers fn to run after every mutation. fn runs without the
// queue lock held and may call back into the queue.
func (q *Queue) OnChange(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

func (q *Queue) notify() {
	q.mu.RLock()
	listeners := append([]func(){}, q.listeners...)
	q.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (q *Queue) indexOf(id string) int {
	for i, j := range q.jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

// Add validates job and appends a copy.
func (q *Queue) Add(job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.indexOf(job.ID) >= 0 {
		q.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "duplicate job id "+job.ID)
	}
	q.jobs = append(q.jobs, job.Clone())
	q.mu.Unlock()

	q.notify()
	return nil
}

// Remove deletes a job. The job being processed cannot be removed.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	i := q.indexOf(id)
	if i < 0 {
		q.mu.Unlock()
		return errors.ErrJobNotFound(id)
	}
	if q.jobs[i].Status == StatusProcessing {
		q.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "cannot remove a job that is processing")
	}
	q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
	switch {
	case q.current == i:
		q.current = -1
	case q.current > i:
		q.current--
	}
	q.mu.Unlock()

	q.notify()
	return nil
}

// Get returns a copy of the job with id.
func (q *Queue) Get(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.indexOf(id); i >= 0 {
		return q.jobs[i].Clone(), nil
	}
	return nil, errors.ErrJobNotFound(id)
}

// Update replaces the stored job that has job.ID.
func (q *Queue) Update(job *Job) error {
	q.mu.Lock()
	i := q.indexOf(job.ID)
	if i < 0 {
		q.mu.Unlock()
		return errors.ErrJobNotFound(job.ID)
	}
	q.jobs[i] = job.Clone()
	q.mu.Unlock()

	q.notify()
	return nil
}

// modify applies fn to the stored job under the lock.
func (q *Queue) modify(id string, fn func(*Job)) error {
	q.mu.Lock()
	i := q.indexOf(id)
	if i < 0 {
		q.mu.Unlock()
		return errors.ErrJobNotFound(id)
	}
	fn(q.jobs[i])
	q.mu.Unlock()

	q.notify()
	return nil
}

// Reorder moves the job at index from to index to.
func (q *Queue) Reorder(from, to int) error {
	q.mu.Lock()
	n := len(q.jobs)
	if from < 0 || from >= n || to < 0 || to >= n {
		q.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("reorder indexes %d -> %d out of range for %d jobs", from, to, n))
	}
	if from == to {
		q.mu.Unlock()
		return nil
	}

	var currentID string
	if q.current >= 0 {
		currentID = q.jobs[q.current].ID
	}
	job := q.jobs[from]
	q.jobs = append(q.jobs[:from], q.jobs[from+1:]...)
	q.jobs = append(q.jobs[:to], append([]*Job{job}, q.jobs[to:]...)...)
	if currentID != "" {
		q.current = q.indexOf(currentID)
	}
	q.mu.Unlock()

	q.notify()
	return nil
}

// NextPending returns the first pending job and makes it current.
func (q *Queue) NextPending() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.jobs {
		if j.Status == StatusPending {
			q.current = i
			return j.Clone(), true
		}
	}
	return nil, false
}

// Current returns the job last handed out by NextPending.
func (q *Queue) Current() (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.current < 0 || q.current >= len(q.jobs) {
		return nil, false
	}
	return q.jobs[q.current].Clone(), true
}

// CurrentIndex is the position of the current job, or -1.
func (q *Queue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// Clear removes every job.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.jobs = nil
	q.current = -1
	q.mu.Unlock()

	q.notify()
}

// Len returns the number of jobs.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// Jobs returns copies of every job in order.
func (q *Queue) Jobs() []*Job {
	return q.filter(func(*Job) bool { return true })
}

func (q *Queue) Pending() []*Job   { return q.byStatus(StatusPending) }
func (q *Queue) Completed() []*Job { return q.byStatus(StatusCompleted) }
func (q *Queue) Failed() []*Job    { return q.byStatus(StatusFailed) }

func (q *Queue) byStatus(s Status) []*Job {
	return q.filter(func(j *Job) bool { return j.Status == s })
}

func (q *Queue) filter(keep func(*Job) bool) []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*Job
	for _, j := range q.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Stats counts jobs by status.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := Stats{Total: len(q.jobs)}
	for _, j := range q.jobs {
		switch j.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// HasUnfinished reports whether any job is pending or processing.
func (q *Queue) HasUnfinished() bool {
	s := q.Stats()
	return s.Pending+s.Processing > 0
}

// ResetFailed returns failed jobs to pending and clears their outcome.
func (q *Queue) ResetFailed() int {
	q.mu.Lock()
	n := 0
	for _, j := range q.jobs {
		if j.Status == StatusFailed {
			j.resetRun()
			n++
		}
	}
	q.mu.Unlock()

	if n > 0 {
		q.notify()
	}
	return n
}

// ValidateAll validates every job without changing the queue.
func (q *Queue) ValidateAll() ValidationSummary {
	jobs := q.Jobs()
	sum := ValidationSummary{Errors: map[string][]string{}}
	for _, j := range jobs {
		err := j.Validate()
		if err == nil {
			sum.Valid++
			continue
		}
		sum.Invalid++
		var vec *errors.ValidationErrorCollection
		if errors.As(err, &vec) {
			for _, e := range vec.Errors {
				sum.Errors[j.ID] = append(sum.Errors[j.ID], e.Error())
			}
		} else {
			sum.Errors[j.ID] = append(sum.Errors[j.ID], err.Error())
		}
		sum.TotalErrors += len(sum.Errors[j.ID])
	}
	return sum
}

// replace swaps in jobs wholesale, used when loading or restoring.
func (q *Queue) replace(jobs []*Job, current int) {
	q.mu.Lock()
	q.jobs = jobs
	if current < -1 || current >= len(jobs) {
		current = -1
	}
	q.current = current
	q.mu.Unlock()

	q.notify()
}
