package domain

import "context"

// Fact 是规则评估时可见的事实
type Fact struct {
	ModelName string
	VersionID string
	Metrics   CandidateMetrics
}

// RuleEngine 是附加晋升规则的评估器。规则返回 true 表示通过。
type RuleEngine interface {
	Evaluate(rule string, fact Fact) (bool, error)
}

// Locker 串行化同一模型的晋升，返回的 release 必须被调用
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
