// Package notify announces market activity to operator channels (Telegram,
// Discord). Delivery is best-effort; the market never blocks on it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/collect9/c9market/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier fans a notification out to every configured sender, filtered by
// event type. An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// AnnouncePurchase formats and delivers a sale announcement.
func (n *Notifier) AnnouncePurchase(ctx context.Context, p domain.Purchase) {
	msg := fmt.Sprintf("Token %d sold to %s for $%d.%02d (%s wei)",
		p.TokenID, p.Buyer.Hex(),
		p.FiatCents/100, p.FiatCents%100,
		p.SettlementWei,
	)
	if err := n.Notify(ctx, "purchase", "Token bought", msg); err != nil {
		n.logger.WarnContext(ctx, "purchase announcement failed",
			slog.String("error", err.Error()),
		)
	}
}

// Notify delivers to all senders if the event type is allowed. Individual
// sender failures are collected; one failing channel does not silence the
// rest.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
