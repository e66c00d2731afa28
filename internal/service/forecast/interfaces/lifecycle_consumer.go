package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/mq"
	regdomain "demandcast/internal/service/registry/domain"
)

// MessageReader 是 kafka.Reader 中被消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ModelReloader 在收到晋升事件时重新加载 Production 模型
type ModelReloader interface {
	ModelName() string
	ReloadModel(ctx context.Context) error
}

// LifecycleConsumer 监听模型生命周期事件：同名模型晋升后热加载，所有事件转发给 websocket 订阅者
type LifecycleConsumer struct {
	reader   MessageReader
	reloader ModelReloader
	hub      *EventHub
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewLifecycleConsumer(reader MessageReader, reloader ModelReloader, hub *EventHub) *LifecycleConsumer {
	return &LifecycleConsumer{reader: reader, reloader: reloader, hub: hub}
}

// Start 开始监听，这是一个长期运行的后台循环
func (c *LifecycleConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log := logger.L()
		log.Info().Msg("✅ model lifecycle consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || c.stopped.Load() {
					log.Info().Msg("🛑 model lifecycle consumer shutting down")
					return
				}
				log.Error().Err(err).Msg("could not fetch lifecycle message, retrying")
				time.Sleep(time.Second)
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("failed to commit lifecycle message")
			}
		}
	}()
}

// Stop 优雅地停止消费者
func (c *LifecycleConsumer) Stop() {
	c.stopped.Store(true)
	_ = c.reader.Close()
	c.wg.Wait()
	logger.L().Info().Msg("✅ model lifecycle consumer stopped")
}

func (c *LifecycleConsumer) processMessage(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parent, msg)
	log := logger.Ctx(ctx)

	var event regdomain.LifecycleEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("malformed lifecycle event skipped")
		return
	}
	if c.hub != nil {
		c.hub.Broadcast(event)
	}
	if event.Type != regdomain.EventModelPromoted || event.ModelName != c.reloader.ModelName() {
		return
	}

	log.Info().Str("model", event.ModelName).Str("version", event.VersionID).Msg("🔄 promotion received, reloading model")
	if err := c.reloader.ReloadModel(ctx); err != nil {
		log.Error().Err(err).Msg("model reload after promotion failed, keeping current model")
	}
}
