package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	"demandcast/internal/service/registry/domain"
)

// KafkaEventPublisher 把生命周期事件写到 Kafka，key 为模型名以保证同一模型的事件有序
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal lifecycle event")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.ModelName), payload); err != nil {
		return errors.Wrapf(err, "produce %s event", event.Type)
	}
	logger.Ctx(ctx).Info().
		Str("event", string(event.Type)).
		Str("model", event.ModelName).
		Str("version", event.VersionID).
		Msg("📤 lifecycle event published")
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
