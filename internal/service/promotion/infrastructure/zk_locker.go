package infrastructure

import (
	"context"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/pkg/zookeeper"
)

// ZKLocker 用 ZooKeeper 临时顺序节点实现 domain.Locker
type ZKLocker struct {
	conn *zookeeper.Conn
}

func NewZKLocker(conn *zookeeper.Conn) *ZKLocker {
	return &ZKLocker{conn: conn}
}

func (l *ZKLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.L().Error().Err(err).Str("key", key).Msg("failed to release promotion lock")
		}
	}, nil
}
