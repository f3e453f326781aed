// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline restricts model backends to the local machine.
//
// With offline mode on, a backend whose endpoint is not a loopback address
// is replaced by a guard that reports the model as disabled by policy. The
// chat surfaces then show the usual unavailable banner instead of sending
// prompts off the machine.
//
//	m = offline.Guard(m, cfg.OpenAI.BaseURL, offline.Policy{Enabled: cfg.Model.Offline})
package offline
