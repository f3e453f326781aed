// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs one prompt/response exchange against an llm.Model and
// turns the model's snapshot stream into an ordered event sequence.
//
// # Event Protocol
//
// A run emits zero or more Content events whose text never gets shorter,
// followed by exactly one Done or Error event. Done carries the last
// snapshot. An Error may arrive with no Content before it.
//
// When the run's context is cancelled, no further events are emitted and the
// channel closes without a terminal event. The model session is reset so the
// next prompt does not continue a half-finished exchange.
//
// # Usage
//
//	s := session.New(model, logger)
//	for ev := range s.Run(ctx, prompt) {
//	    switch ev.Type {
//	    case session.EventContent:
//	        show(ev.Content)
//	    case session.EventError:
//	        rollback(ev.Content)
//	    }
//	}
//	res := s.Result()
package session
