// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/session"
)

// deltaPrinter writes the growth of successive snapshots, so a terminal
// shows a response appear as it streams.
type deltaPrinter struct {
	w       io.Writer
	printed string
}

// Print writes what snapshot adds to the text already printed. A snapshot
// that does not extend it is printed whole on a new line.
func (p *deltaPrinter) Print(snapshot string) {
	if strings.HasPrefix(snapshot, p.printed) {
		io.WriteString(p.w, snapshot[len(p.printed):])
	} else {
		fmt.Fprint(p.w, "\n", snapshot)
	}
	p.printed = snapshot
}

// Text returns everything printed so far.
func (p *deltaPrinter) Text() string {
	return p.printed
}

// outcome is how a streamed exchange ended.
type outcome struct {
	text      string
	err       string
	cancelled bool
}

// consume drains events, calling onSnapshot for each content event.
func consume(events <-chan session.Event, onSnapshot func(string)) outcome {
	var out outcome
	terminal := false
	for ev := range events {
		switch ev.Type {
		case session.EventContent:
			out.text = ev.Content
			if onSnapshot != nil {
				onSnapshot(ev.Content)
			}
		case session.EventDone:
			out.text = ev.Content
			if onSnapshot != nil {
				onSnapshot(ev.Content)
			}
			terminal = true
		case session.EventError:
			out.err = ev.Content
			terminal = true
		}
	}
	// A closed stream without a terminal event was cancelled.
	out.cancelled = !terminal
	return out
}

// probe checks availability, returning an unavailable error carrying the
// status when the model cannot serve.
func probe(ctx context.Context, m llm.Model) (llm.AvailabilityStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := m.CheckAvailability(ctx)
	if !status.IsAvailable() {
		return status, llm.NewUnavailableError(status)
	}
	return status, nil
}

// printUnavailable explains why the model cannot serve and how to fix it.
func printUnavailable(w io.Writer, status llm.AvailabilityStatus) {
	fmt.Fprintf(w, "%s: %s\n", status.Title, status.Message)
	if status.Remediation != "" {
		fmt.Fprintln(w, status.Remediation)
	}
}
