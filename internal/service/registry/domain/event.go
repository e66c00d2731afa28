package domain

import (
	"context"
	"time"
)

type LifecycleEventType string

const (
	EventModelTrained  LifecycleEventType = "model.trained"
	EventModelPromoted LifecycleEventType = "model.promoted"
)

// LifecycleEvent 描述一次模型注册或晋升
type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	ModelName  string             `json:"model_name"`
	VersionID  string             `json:"version_id"`
	RunID      string             `json:"run_id"`
	Stage      Stage              `json:"stage"`
	Archived   []string           `json:"archived,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// EventPublisher 发布生命周期事件
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// NopPublisher 在未配置消息队列时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }
