// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"

	"demandcast/internal/pkg/logger"
)

// Conn 是 zk.Conn 的轻量包装
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群并等待会话建立
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("zookeeper: no server configured")
	}
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}
	c, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.L().Info().Strs("servers", servers).Msg("✅ ZooKeeper session established")
				return &Conn{Conn: c}, nil
			}
		case <-deadline:
			c.Close()
			return nil, fmt.Errorf("zookeeper: session not established within %s", sessionTimeout)
		}
	}
}
