// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jeranaias/modelexplorer/internal/llm"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for a remote endpoint in offline mode.
	ErrNonLocalhost = errors.New("only localhost endpoints are allowed in offline mode")

	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https endpoints are allowed")

	// ErrInvalidURL is returned when an endpoint does not parse.
	ErrInvalidURL = errors.New("invalid endpoint URL")
)

// =============================================================================
// POLICY
// =============================================================================

// Policy decides which model endpoints may be contacted.
type Policy struct {
	// Enabled limits endpoints to loopback hosts.
	Enabled bool
}

// CheckEndpoint reports whether rawURL may be contacted. The scheme is
// checked whether or not offline mode is on.
func (p Policy) CheckEndpoint(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return ErrInvalidURLScheme
	}
	if p.Enabled && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// IsLocalhost reports whether host is "localhost" or a loopback IP. A port
// and IPv6 brackets are ignored.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// =============================================================================
// GUARD
// =============================================================================

// Guard returns m when policy allows its endpoint, and otherwise a model
// with the same name that is unavailable with kind DisabledByPolicy.
func Guard(m llm.Model, endpoint string, policy Policy) llm.Model {
	err := policy.CheckEndpoint(endpoint)
	if err == nil {
		return m
	}

	remediation := "Set ollama.url or openai.base_url to a local address."
	if policy.Enabled {
		remediation = "Use a model served on this machine, or turn off offline mode (model.offline = false)."
	}
	return &blocked{
		name: m.Name(),
		status: llm.StatusUnavailable(llm.DisabledByPolicy,
			fmt.Sprintf("%s is blocked: %v.", endpoint, err),
			remediation),
	}
}

// blocked is a model that refuses every request.
type blocked struct {
	name   string
	status llm.AvailabilityStatus
}

func (b *blocked) Name() string { return b.name }

func (b *blocked) CheckAvailability(context.Context) llm.AvailabilityStatus { return b.status }

func (b *blocked) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	close(out)
	errs <- llm.NewUnavailableError(b.status)
	close(errs)
	return out, errs
}

func (b *blocked) Complete(ctx context.Context, prompt string) (string, error) {
	return "", llm.NewUnavailableError(b.status)
}

func (b *blocked) Reset() {}

func (b *blocked) Fork() llm.Model { return b }
