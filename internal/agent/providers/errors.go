package providers

import (
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// classifyErrorText maps an SDK error's message to the canonical
// agent.ProviderErrorKind taxonomy (spec §4.1) when no HTTP status code is
// available to classify from directly (agent.ClassifyHTTPError covers the
// status-code path; this covers transport/SDK-level errors that only
// surface a message).
func classifyErrorText(provider string, err error) *agent.ProviderError {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "canceled"),
		strings.Contains(msg, "cancelled"):
		return agent.ClassifyCancelled(provider, err)

	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return agent.NewProviderError(agent.ErrorKindRateLimited, provider, err.Error()).WithCause(err)

	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return agent.NewProviderError(agent.ErrorKindAuth, provider, err.Error()).WithCause(err)

	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "connection reset"):
		return agent.ClassifyNetworkError(provider, err)

	default:
		return agent.NewProviderError(agent.ErrorKindOther, provider, err.Error()).WithCause(err)
	}
}
