package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransfer indicates a single vault payout.
	KindTransfer = "vault_transfer"
	// KindBatchTransfer indicates one item of a committed batch.
	KindBatchTransfer = "vault_batch_transfer"
	// KindEmergencyWithdraw indicates a full drain to the owner.
	KindEmergencyWithdraw = "vault_emergency_withdraw"
	// KindSpenderUpdated indicates a change to a spender authorization.
	KindSpenderUpdated = "vault_spender_updated"
	// KindOwnershipTransferred indicates a new vault owner.
	KindOwnershipTransferred = "vault_ownership_transferred"
	// KindDeposit indicates funds credited to a vault.
	KindDeposit = "vault_deposit"
	// KindTokenCreated indicates a newly issued token.
	KindTokenCreated = "token_created"
	// KindCardIn indicates a card top-up pending settlement.
	KindCardIn = "card_in"
	// KindCardOut indicates a payout pushed to a card.
	KindCardOut = "card_out"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Recorder keeps every message in memory. Useful for tests.
type Recorder struct {
	Messages []Message
}

// Send appends the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.Messages = append(r.Messages, message)
	return nil
}

// Last returns the most recent message or the zero value.
func (r *Recorder) Last() Message {
	if len(r.Messages) == 0 {
		return Message{}
	}
	return r.Messages[len(r.Messages)-1]
}
