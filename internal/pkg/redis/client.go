// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 包装 UniversalClient，单机与集群地址列表都可以使用
type Client struct {
	client redis.UniversalClient
}

// NewClient 创建客户端并 Ping 一次，连不上直接返回错误
func NewClient(addrs []string) (*Client, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %v: %w", addrs, err)
	}
	return &Client{client: rdb}, nil
}

// GetClient 返回底层客户端
func (c *Client) GetClient() redis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
