package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regdomain "demandcast/internal/service/registry/domain"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed int
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, closed: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, context.Canceled
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

type countingReloader struct {
	reloads atomic.Int32
}

func (r *countingReloader) ModelName() string { return "luxury_demand_forecaster" }

func (r *countingReloader) ReloadModel(context.Context) error {
	r.reloads.Add(1)
	return nil
}

func eventMessage(t *testing.T, e regdomain.LifecycleEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(e.ModelName), Value: b}
}

func TestLifecycleConsumer_ReloadsOnPromotion(t *testing.T) {
	reader := newFakeReader(
		eventMessage(t, regdomain.LifecycleEvent{Type: regdomain.EventModelTrained, ModelName: "luxury_demand_forecaster", VersionID: "3"}),
		eventMessage(t, regdomain.LifecycleEvent{Type: regdomain.EventModelPromoted, ModelName: "other_model", VersionID: "1"}),
		eventMessage(t, regdomain.LifecycleEvent{Type: regdomain.EventModelPromoted, ModelName: "luxury_demand_forecaster", VersionID: "3"}),
		kafka.Message{Value: []byte("not json")},
	)
	reloader := &countingReloader{}
	consumer := NewLifecycleConsumer(reader, reloader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer.Start(ctx)

	require.Eventually(t, func() bool { return reader.commits() == 4 }, 2*time.Second, 10*time.Millisecond)
	consumer.Stop()

	assert.Equal(t, int32(1), reloader.reloads.Load())
}
