package scheduler

import (
	"context"
	"time"
)

// Job is a periodic maintenance task (not a forecast job)
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	Run(ctx context.Context) error

	// Schedule returns a 6-field cron expression (with seconds)
	// e.g. "0 0 3 * * *" = every day 03:00
	Schedule() string
}

// RunResult records one execution
type RunResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const historyLimit = 100

// history keeps the most recent results of one job
type history struct {
	results []RunResult
}

func (h *history) add(r RunResult) {
	h.results = append(h.results, r)
	if len(h.results) > historyLimit {
		h.results = h.results[len(h.results)-historyLimit:]
	}
}

func (h *history) last() (RunResult, bool) {
	if len(h.results) == 0 {
		return RunResult{}, false
	}
	return h.results[len(h.results)-1], true
}

func (h *history) failures() int {
	n := 0
	for _, r := range h.results {
		if !r.Success {
			n++
		}
	}
	return n
}
