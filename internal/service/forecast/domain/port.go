package domain

import (
	"context"
	"time"
)

// SalesSource 提供训练用的历史销售数据
type SalesSource interface {
	LoadSales(ctx context.Context) (Frame, error)
}

// ForecastCache 缓存某个模型版本下某个请求的预测结果
type ForecastCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
