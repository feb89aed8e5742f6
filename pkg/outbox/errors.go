package outbox

import (
	"fmt"

	"github.com/iota-uz/tenantkit/pkg/serrors"
)

var (
	ErrInvalidConfig    = serrors.NewError("OUTBOX_INVALID_CONFIG", "invalid outbox configuration", "")
	ErrMalformedPayload = serrors.NewError("OUTBOX_MALFORMED_PAYLOAD", "outbox payload is not an event envelope", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}
