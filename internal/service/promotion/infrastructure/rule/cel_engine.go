package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"demandcast/internal/service/promotion/domain"
)

// CELRuleEngine 是 domain.RuleEngine 的 CEL 实现。
// 规则里可用的变量：mape, r2, mae, rmse (double)，model_name, version (string)。
type CELRuleEngine struct {
	env      *cel.Env
	mu       sync.Mutex
	programs map[string]cel.Program
}

func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("mape", cel.DoubleType),
		cel.Variable("r2", cel.DoubleType),
		cel.Variable("mae", cel.DoubleType),
		cel.Variable("rmse", cel.DoubleType),
		cel.Variable("model_name", cel.StringType),
		cel.Variable("version", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	return &CELRuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile 校验规则并缓存编译结果，启动时调用可以尽早发现配置错误
func (e *CELRuleEngine) Compile(rule string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[rule]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule must be a boolean expression, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs[rule] = prg
	return prg, nil
}

// Evaluate 实现了 domain.RuleEngine 接口
func (e *CELRuleEngine) Evaluate(rule string, fact domain.Fact) (bool, error) {
	prg, err := e.Compile(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"mape":       fact.Metrics.MAPE,
		"r2":         fact.Metrics.R2,
		"mae":        fact.Metrics.MAE,
		"rmse":       fact.Metrics.RMSE,
		"model_name": fact.ModelName,
		"version":    fact.VersionID,
	})
	if err != nil {
		return false, err
	}
	passed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q evaluated to %T", rule, out.Value())
	}
	return passed, nil
}
