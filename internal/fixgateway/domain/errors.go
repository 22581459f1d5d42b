package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors identifying the gateway's error taxonomy. Call sites wrap
// one of these with fmt.Errorf("...: %w", ...) and callers classify with
// errors.Is/errors.As rather than inspecting message text.
var (
	// ErrParse means an envelope could not be decoded from its wire form.
	// The record is logged and still committed; it is never dispatched.
	ErrParse = errors.New("fixgateway: envelope decode failed")

	// ErrValidation means an envelope decoded but is missing a field the
	// route requires. Handled identically to ErrParse.
	ErrValidation = errors.New("fixgateway: envelope failed validation")

	// ErrNetwork marks a transient destination failure eligible for retry.
	ErrNetwork = errors.New("fixgateway: network error")

	// ErrEvaluation marks an expression compile or execution failure during
	// partitioning. Publication proceeds without a key/partition.
	ErrEvaluation = errors.New("fixgateway: expression evaluation failed")

	// ErrDestinationPermanent marks a non-network send failure. No retry;
	// the envelope is dead-lettered.
	ErrDestinationPermanent = errors.New("fixgateway: destination send failed permanently")

	// ErrConfiguration marks a fatal startup configuration problem.
	ErrConfiguration = errors.New("fixgateway: configuration error")

	// ErrSupervisor marks the broker being unreachable past the startup
	// retry window.
	ErrSupervisor = errors.New("fixgateway: supervisor startup failed")
)

// networkTokens are matched case-insensitively against an error's message
// or the name of its underlying type when classifying a send failure.
var networkTokens = []string{
	"connection", "timeout", "network", "socket", "io", "connect", "refused",
}

// NetworkTokens returns the token list the classification rule checks for.
func NetworkTokens() []string {
	return networkTokens
}

// IsNetworkError reports whether err should be retried: a net.Error, an
// ErrNetwork wrapper, or an error whose message or type name contains one
// of NetworkTokens, case-insensitively. An error wrapping
// ErrDestinationPermanent (and not ErrNetwork) is never a network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	if errors.Is(err, ErrDestinationPermanent) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	typeName := strings.ToLower(fmt.Sprintf("%T", err))
	for _, tok := range networkTokens {
		if strings.Contains(msg, tok) || strings.Contains(typeName, tok) {
			return true
		}
	}
	return false
}
