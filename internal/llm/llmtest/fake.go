// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/modelexplorer/internal/llm"
)

// Fake is a scripted model. Each Stream call emits Snapshots in order, then
// fails with Err if it is set.
type Fake struct {
	mu sync.Mutex

	Snapshots []string
	Err       error
	// Delay is slept before each snapshot.
	Delay  time.Duration
	Status llm.AvailabilityStatus
	// Block makes Stream wait for ctx cancellation after the snapshots.
	Block bool

	prompts []string
	resets  int
	forks   int
	seeded  []llm.Turn
}

// New returns an available Fake that streams snapshots.
func New(snapshots ...string) *Fake {
	return &Fake{
		Snapshots: snapshots,
		Status:    llm.StatusAvailable("fake model ready"),
	}
}

// Name implements llm.Model.
func (f *Fake) Name() string { return "fake" }

// CheckAvailability implements llm.Model.
func (f *Fake) CheckAvailability(context.Context) llm.AvailabilityStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Status
}

// SetStatus changes the reported availability.
func (f *Fake) SetStatus(s llm.AvailabilityStatus) {
	f.mu.Lock()
	f.Status = s
	f.mu.Unlock()
}

// Stream implements llm.Model.
func (f *Fake) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	snaps := append([]string(nil), f.Snapshots...)
	failure, delay, block := f.Err, f.Delay, f.Block
	f.mu.Unlock()

	out := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)

		for _, s := range snaps {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if !llm.Send(ctx, out, s) {
				errs <- ctx.Err()
				return
			}
		}
		if block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}
		if failure != nil {
			errs <- failure
		}
	}()

	return out, errs
}

// Complete implements llm.Model.
func (f *Fake) Complete(ctx context.Context, prompt string) (string, error) {
	return llm.Collect(f.Stream(ctx, prompt))
}

// Reset implements llm.Model.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.resets++
	f.seeded = nil
	f.mu.Unlock()
}

// Fork implements llm.Model. A Fake keeps no history, so forks share the
// script and the recorded prompts.
func (f *Fake) Fork() llm.Model {
	f.mu.Lock()
	f.forks++
	f.mu.Unlock()
	return f
}

// Forks returns how many times Fork was called.
func (f *Fake) Forks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forks
}

// Seed implements llm.Seeder.
func (f *Fake) Seed(turns []llm.Turn) {
	f.mu.Lock()
	f.seeded = append([]llm.Turn(nil), turns...)
	f.mu.Unlock()
}

// Prompts returns every prompt streamed so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Resets returns how many times Reset was called.
func (f *Fake) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Seeded returns the turns passed to the last Seed call.
func (f *Fake) Seeded() []llm.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Turn(nil), f.seeded...)
}
