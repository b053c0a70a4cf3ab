package notify

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"onboarding/internal/registration/models"
	"onboarding/pkg/requestcontext"
)

// Producer is the subset of *kgo.Client used by KafkaSender.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSender publishes welcome messages keyed by identity id, so every
// message for one identity lands on the same partition.
type KafkaSender struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

func (k *KafkaSender) SendWelcome(ctx context.Context, summary models.ProfileSummary) error {
	body, err := encode(summary, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("encode welcome: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(summary.IdentityID.String()),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventWelcome)},
		},
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce welcome: %w", err)
	}
	return nil
}
