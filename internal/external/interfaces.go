// Package external is the anti-corruption layer between the reminder engine
// and third-party delivery providers. Outbound HTTP calls are routed through
// BaseClient, which enforces circuit breaking, bounded retries and error
// mapping; the AWS SDK clients carry their own retry stack and skip it.
package external

import (
	"context"

	"luach/internal/types"
)

// EmailProvider abstracts the outbound mail transport. Implementations
// transmit pre-rendered content and return the provider's message ID for
// correlation with asynchronous bounce feedback.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
