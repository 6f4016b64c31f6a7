// Package notify fans reconstruction alerts out to chat channels. Alerts
// are filtered by event type so operators receive only what they opted in
// to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Event types raised by the timeline service.
const (
	EventIntegrityError = "integrity_error"
	EventLiquidation    = "liquidation"
	EventZombie         = "zombie"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender. An empty event list allows every
// event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	repeats *cooldown
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over senders, forwarding only the listed
// event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// WithCooldown drops an alert whose event and title were already sent
// within window. It returns n for chaining.
func (n *Notifier) WithCooldown(window time.Duration) *Notifier {
	if window > 0 {
		n.repeats = newCooldown(window)
	}
	return n
}

// Enabled reports whether Notify would forward event.
func (n *Notifier) Enabled(event string) bool {
	return len(n.senders) > 0 && (len(n.events) == 0 || n.events[event])
}

// Notify delivers title and message for an allowed event type. A failing
// sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.repeats != nil && n.repeats.recent(event+"|"+title) {
		n.logger.DebugContext(ctx, "repeat alert suppressed", slog.String("event", event), slog.String("title", title))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
