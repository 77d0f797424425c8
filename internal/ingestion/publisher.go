package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpClearing/internal/event"
	"PerpClearing/internal/history"
)

// HistorySubjectPrefix is the subject namespace history records are
// published under: clearinghouse.history.{log}.{record_id}.
const HistorySubjectPrefix = "clearinghouse.history"

// HistorySubject returns the subject a record is published to.
func HistorySubject(kind history.Kind, recordID uint64) string {
	return fmt.Sprintf("%s.%s.%d", HistorySubjectPrefix, kind, recordID)
}

// JetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// PublishedRecord is the message body of a published history record.
type PublishedRecord struct {
	Sequence  int64           `json:"sequence"`
	Operation event.Operation `json:"operation"`
	history.Entry
}

// OutboundPublisher publishes every appended history record to NATS for
// downstream consumers.
type OutboundPublisher struct {
	js        JetStreamPublisher
	inputChan <-chan *event.Envelope
	logger    zerolog.Logger
}

func NewOutboundPublisher(js JetStreamPublisher, inputChan <-chan *event.Envelope, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run publishes envelopes until ctx is done or the input channel is closed.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.Publish(ctx, env); err != nil {
				// Non-fatal: consumers can read the Postgres mirror instead.
				op.logger.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// Publish sends one message per record in env. The message id makes
// republishing idempotent within the stream's duplicate window.
func (op *OutboundPublisher) Publish(ctx context.Context, env *event.Envelope) error {
	for _, entry := range env.Entries {
		data, err := json.Marshal(PublishedRecord{
			Sequence:  env.Sequence,
			Operation: env.Operation,
			Entry:     entry,
		})
		if err != nil {
			return fmt.Errorf("marshal %s record %d: %w", entry.Kind, entry.RecordID, err)
		}

		subject := HistorySubject(entry.Kind, entry.RecordID)
		msgID := fmt.Sprintf("%s-%d", entry.Kind, entry.RecordID)
		if _, err := op.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}
	return nil
}
