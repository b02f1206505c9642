package notify

import (
	"context"

	"github.com/loadmatch/dispatcher/internal/kafka"
	"go.uber.org/zap"
)

// Notifier delivers offer notifications to vendors. The concrete transport
// (push, SMS) lives behind the gateway this service posts to; here the
// delivery is logged. Failures never block dispatch: the offer TTL keeps
// running whether or not the vendor was reached.
type Notifier struct {
	log *zap.Logger
}

func NewNotifier(log *zap.Logger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) Notify(ctx context.Context, event kafka.DispatchEvent) error {
	n.log.Info("notify vendor",
		zap.Int64("vendor_id", event.VendorID),
		zap.String("event", event.Type),
		zap.String("booking", event.BookingReference),
		zap.Int("sequence", event.SequenceNumber),
		zap.Time("expires_at", event.ExpiresAt),
	)
	return nil
}
