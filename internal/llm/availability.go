// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

// AvailabilityKind classifies whether a model can run.
type AvailabilityKind int

const (
	Available AvailabilityKind = iota
	// IneligibleDevice: the host can never run this model.
	IneligibleDevice
	// DisabledByPolicy: the model exists but is turned off, e.g. no API key.
	DisabledByPolicy
	// NotReady: the model is installing, downloading or warming up.
	NotReady
	// UnsupportedEnvironment: the backend cannot be reached at all.
	UnsupportedEnvironment
)

// String returns the machine-readable reason code.
func (k AvailabilityKind) String() string {
	switch k {
	case Available:
		return "available"
	case IneligibleDevice:
		return "ineligible_device"
	case DisabledByPolicy:
		return "disabled_by_policy"
	case NotReady:
		return "not_ready"
	case UnsupportedEnvironment:
		return "unsupported_environment"
	default:
		return "unknown"
	}
}

// ParseAvailabilityKind maps a reason code from String back to its kind.
func ParseAvailabilityKind(reason string) (AvailabilityKind, bool) {
	for k := Available; k <= UnsupportedEnvironment; k++ {
		if k.String() == reason {
			return k, true
		}
	}
	return 0, false
}

// Title returns a short human-readable heading for the kind.
func (k AvailabilityKind) Title() string {
	switch k {
	case Available:
		return "Ready"
	case IneligibleDevice:
		return "Device Not Eligible"
	case DisabledByPolicy:
		return "Model Disabled"
	case NotReady:
		return "Model Not Ready"
	case UnsupportedEnvironment:
		return "Backend Unreachable"
	default:
		return "Unavailable"
	}
}

// Remediable reports whether the user can fix the condition themselves.
func (k AvailabilityKind) Remediable() bool {
	switch k {
	case DisabledByPolicy, NotReady, UnsupportedEnvironment:
		return true
	}
	return false
}

// AvailabilityStatus is the result of probing a model.
type AvailabilityStatus struct {
	Kind    AvailabilityKind `json:"-"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	// Remediation is a hint for fixing the condition, empty when none exists.
	Remediation string `json:"remediation,omitempty"`
	Remediable  bool   `json:"remediable"`
}

// StatusAvailable reports a ready model.
func StatusAvailable(message string) AvailabilityStatus {
	return AvailabilityStatus{
		Kind:    Available,
		Title:   Available.Title(),
		Message: message,
	}
}

// StatusUnavailable reports a model that cannot run.
func StatusUnavailable(kind AvailabilityKind, message, remediation string) AvailabilityStatus {
	return AvailabilityStatus{
		Kind:        kind,
		Title:       kind.Title(),
		Message:     message,
		Remediation: remediation,
		Remediable:  kind.Remediable(),
	}
}

// IsAvailable reports whether the model can run.
func (s AvailabilityStatus) IsAvailable() bool {
	return s.Kind == Available
}

// Reason returns the reason code, or "" when the model is available.
func (s AvailabilityStatus) Reason() string {
	if s.IsAvailable() {
		return ""
	}
	return s.Kind.String()
}

// Summary joins the title and message on one line.
func (s AvailabilityStatus) Summary() string {
	if s.Message == "" {
		return s.Title
	}
	return s.Title + ": " + s.Message
}
