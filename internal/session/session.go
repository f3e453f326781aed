// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/observability"
)

// ErrAlreadyRun is reported when Run is called more than once.
var ErrAlreadyRun = errors.New("session already run")

// Result is the outcome of a run, available once the event channel closes.
type Result struct {
	// Text is the final response, or the last partial snapshot when the run
	// was cancelled or failed.
	Text string
	// Err is set when the run failed.
	Err error
	// Cancelled is set when the run's context ended before a terminal event.
	Cancelled bool
}

// OK reports whether the run completed normally.
func (r Result) OK() bool {
	return r.Err == nil && !r.Cancelled
}

// Session is a single exchange. It is not reusable.
type Session struct {
	model  llm.Model
	logger observability.Logger

	once   sync.Once
	done   chan struct{}
	result Result
}

// New creates a session for one exchange with model.
func New(model llm.Model, logger observability.Logger) *Session {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Session{
		model:  model,
		logger: logger.WithComponent("session"),
		done:   make(chan struct{}),
	}
}

// Run starts the exchange and returns its events. The channel is unbuffered
// and is closed after the terminal event, or without one on cancellation.
// The caller must drain it.
func (s *Session) Run(ctx context.Context, prompt string) <-chan Event {
	out := make(chan Event)

	started := false
	s.once.Do(func() {
		started = true
		go s.run(ctx, prompt, out)
	})
	if !started {
		go func() {
			defer close(out)
			out <- Error(ErrAlreadyRun.Error())
		}()
	}
	return out
}

// Result waits for the run to finish and returns its outcome.
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

// Done is closed when the run has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run(ctx context.Context, prompt string, out chan<- Event) {
	start := time.Now()
	defer close(s.done)
	defer close(out)

	snapshots, errs := s.model.Stream(ctx, prompt)

	var last string
	emitted := 0
	for snap := range snapshots {
		if len(snap) < len(last) {
			continue
		}
		last = snap
		if !s.emit(ctx, out, Content(snap)) {
			s.cancelled(last, snapshots, errs)
			return
		}
		emitted++
	}

	err := <-errs
	if ctx.Err() != nil {
		s.cancelled(last, nil, nil)
		return
	}

	if err != nil {
		msg := errorMessage(err)
		s.result = Result{Text: last, Err: err}
		s.logger.Warn("session failed", "error", err, "snapshots", emitted)
		s.emit(ctx, out, Error(msg))
		return
	}

	s.result = Result{Text: last}
	if !s.emit(ctx, out, Done(last)) {
		s.cancelled(last, nil, nil)
		return
	}
	s.logger.Debug("session complete",
		"snapshots", emitted,
		"length", len(last),
		"duration", time.Since(start))
}

// emit delivers ev unless ctx ends first.
func (s *Session) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// cancelled records a cancelled run, drains whatever the model still sends
// and resets the model session.
func (s *Session) cancelled(last string, snapshots <-chan string, errs <-chan error) {
	if snapshots != nil {
		for range snapshots {
		}
		<-errs
	}
	s.model.Reset()
	s.result = Result{Text: last, Cancelled: true}
	s.logger.Debug("session cancelled", "length", len(last))
}

// errorMessage renders err for the user.
func errorMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.Kind == llm.KindUnavailable && llmErr.Status.Title != "" {
			return llmErr.Status.Summary()
		}
		return llmErr.Error()
	}
	return err.Error()
}
