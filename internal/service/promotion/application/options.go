package application

import (
	"time"

	"demandcast/internal/service/promotion/domain"
	regdomain "demandcast/internal/service/registry/domain"
)

// Option 配置 PromotionService 的可选依赖
type Option func(*PromotionService)

// WithThresholds 覆盖默认的 MAPE / R² 门槛
func WithThresholds(t domain.Thresholds) Option {
	return func(s *PromotionService) { s.thresholds = t }
}

// WithRules 在固定门槛之后追加规则，例如 "mae < 25.0"
func WithRules(engine domain.RuleEngine, rules ...string) Option {
	return func(s *PromotionService) {
		s.rules = engine
		s.extraRules = append(s.extraRules, rules...)
	}
}

// WithLocker 使用分布式锁串行化同一模型的晋升
func WithLocker(l domain.Locker, timeout time.Duration) Option {
	return func(s *PromotionService) {
		s.locker = l
		s.lockTimeout = timeout
	}
}

// WithPublisher 晋升成功后发布 model.promoted 事件
func WithPublisher(p regdomain.EventPublisher) Option {
	return func(s *PromotionService) { s.publisher = p }
}

// WithClock 测试用
func WithClock(now func() time.Time) Option {
	return func(s *PromotionService) { s.now = now }
}
