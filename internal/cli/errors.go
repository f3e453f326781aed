// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError = 2
	// ExitConfigError indicates a bad config file or flag value.
	ExitConfigError = 3
	// ExitUnavailable indicates the model cannot serve requests.
	ExitUnavailable = 4
	// ExitNotFoundError indicates a conversation was not found.
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigError wraps a failure to load or apply configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// UsageError is returned for invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// NotFoundError is returned when a conversation ID matches nothing.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return storage.ErrConversationNotFound }

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var (
		cfgErr   *ConfigError
		usageErr *UsageError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &usageErr):
		return ExitUsageError
	case llm.IsUnavailable(err):
		return ExitUnavailable
	case errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}
