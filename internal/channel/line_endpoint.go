package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrWebhookInactive means the LINE channel has webhooks switched off. It can
// only be fixed by hand in the LINE Developers console.
var ErrWebhookInactive = errors.New("line webhook is not active; enable \"Use webhook\" in the LINE Developers console")

// EndpointState is the outcome of endpoint reconciliation.
type EndpointState int

const (
	EndpointUnchecked EndpointState = iota
	EndpointQueried
	EndpointActiveMatching
	EndpointActiveMismatched
	EndpointInactive
)

func (s EndpointState) String() string {
	switch s {
	case EndpointUnchecked:
		return "unchecked"
	case EndpointQueried:
		return "queried"
	case EndpointActiveMatching:
		return "active-matching"
	case EndpointActiveMismatched:
		return "active-mismatched"
	case EndpointInactive:
		return "inactive"
	default:
		return fmt.Sprintf("EndpointState(%d)", int(s))
	}
}

// ReconcileEndpoint makes the LINE webhook endpoint point at expected. It
// issues one query and, only when the active endpoint differs, one update.
// An inactive or missing endpoint yields ErrWebhookInactive and no update.
func ReconcileEndpoint(ctx context.Context, api LineEndpointAPI, expected string, logger *slog.Logger) (EndpointState, error) {
	current, err := api.WebhookEndpoint(ctx)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		return EndpointInactive, ErrWebhookInactive
	case err != nil:
		return EndpointUnchecked, fmt.Errorf("query line webhook endpoint: %w", err)
	}

	state := classifyEndpoint(current, expected)
	switch state {
	case EndpointInactive:
		return state, ErrWebhookInactive
	case EndpointActiveMatching:
		logger.Debug("line webhook endpoint up to date", "endpoint", expected)
		return state, nil
	}

	if err := api.SetWebhookEndpoint(ctx, expected); err != nil {
		return state, fmt.Errorf("set line webhook endpoint: %w", err)
	}
	logger.Info("line webhook endpoint updated", "from", current.URL, "to", expected)
	return state, nil
}

func classifyEndpoint(current LineEndpoint, expected string) EndpointState {
	switch {
	case !current.Active:
		return EndpointInactive
	case current.URL == expected:
		return EndpointActiveMatching
	default:
		return EndpointActiveMismatched
	}
}
