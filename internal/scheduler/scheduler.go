// Package scheduler sends switch commands on cron schedules.
//
// Each configured schedule names a bridge entity, a method and an optional
// dim level:
//
//	schedules:
//	  - spec: "30 6 * * 1-5"
//	    entity: Hallway
//	    method: turnon
//	  - spec: "@midnight"
//	    entity: Garage door
//	    method: turnoff
//
// Specs use the five-field cron format or a descriptor such as "@daily"
// or "@every 15m".
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// commandTimeout bounds one scheduled command including repeats.
const commandTimeout = 30 * time.Second

// Sentinel errors.
var (
	ErrNoCommander     = errors.New("scheduler: commander is required")
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")
)

// Commander sends a command to a named entity. Satisfied by *hass.Bridge.
type Commander interface {
	Command(ctx context.Context, ref string, method protocol.Method, param int) error
}

// Logger is the structured logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// JobInfo describes one scheduled command.
type JobInfo struct {
	Spec     string    `json:"spec"`
	Entity   string    `json:"entity"`
	Method   string    `json:"method"`
	Param    int       `json:"param,omitempty"`
	Next     time.Time `json:"next,omitzero"`
	Prev     time.Time `json:"prev,omitzero"`
	Runs     uint64    `json:"runs"`
	Failures uint64    `json:"failures"`
}

// job is a cron.Job sending one command.
type job struct {
	id     cron.EntryID
	spec   string
	entity string
	method protocol.Method
	param  int

	runs     atomic.Uint64
	failures atomic.Uint64

	s *Scheduler
}

// Run implements cron.Job.
func (j *job) Run() {
	ctx, cancel := context.WithTimeout(j.s.baseContext(), commandTimeout)
	defer cancel()

	j.runs.Add(1)
	if err := j.s.cmd.Command(ctx, j.entity, j.method, j.param); err != nil {
		j.failures.Add(1)
		j.s.logger.Error("scheduled command failed",
			"entity", j.entity,
			"method", j.method.String(),
			"error", err,
		)
		return
	}
	j.s.logger.Info("scheduled command sent", "entity", j.entity, "method", j.method.String())
}

// Scheduler runs configured commands on cron schedules.
//
// Thread Safety: All methods are safe for concurrent use.
type Scheduler struct {
	cron   *cron.Cron
	cmd    Commander
	logger Logger

	mu   sync.RWMutex
	jobs []*job

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a scheduler in the local time zone. opts are passed to
// cron.New.
func New(cmd Commander, logger Logger, opts ...cron.Option) (*Scheduler, error) {
	if cmd == nil {
		return nil, ErrNoCommander
	}
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(opts...),
		cmd:    cmd,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Add schedules one entry.
func (s *Scheduler) Add(entry config.ScheduleConfig) error {
	if entry.Entity == "" {
		return fmt.Errorf("%w: %q has no entity", ErrInvalidSchedule, entry.Spec)
	}
	method, err := protocol.ParseMethod(entry.Method)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, entry.Entity, err)
	}

	j := &job{
		spec:   entry.Spec,
		entity: entry.Entity,
		method: method,
		param:  entry.Param,
		s:      s,
	}
	id, err := s.cron.AddJob(entry.Spec, j)
	if err != nil {
		return fmt.Errorf("%w: %s: spec %q: %w", ErrInvalidSchedule, entry.Entity, entry.Spec, err)
	}
	j.id = id

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.logger.Debug("command scheduled", "entity", entry.Entity, "method", method.String(), "spec", entry.Spec)
	return nil
}

// Load schedules every entry. All entries are attempted; the returned
// error joins the failures.
func (s *Scheduler) Load(entries []config.ScheduleConfig) error {
	var errs []error
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Len())
}

// Stop halts the cron loop, cancels running commands and waits for them
// to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

// Len returns the number of scheduled commands.
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Jobs returns the scheduled commands with their next and previous run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.id)
		out = append(out, JobInfo{
			Spec:     j.spec,
			Entity:   j.entity,
			Method:   j.method.String(),
			Param:    j.param,
			Next:     entry.Next,
			Prev:     entry.Prev,
			Runs:     j.runs.Load(),
			Failures: j.failures.Load(),
		})
	}
	return out
}

func (s *Scheduler) baseContext() context.Context {
	return s.ctx
}
