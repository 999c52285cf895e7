package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunNotifier logs digests without sending them.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, digest Digest) error {
	n.logger.Info().
		Str("level", string(digest.Level)).
		Str("previous_level", string(digest.PreviousLevel)).
		Strs("diverted_services", digest.DivertedServices).
		Strs("errors", digest.Errors).
		Msg("[DRY-RUN] Would send digest")
	return nil
}
