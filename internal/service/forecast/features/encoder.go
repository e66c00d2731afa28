package features

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/domain"
)

// UnseenCode 是编码器对未见过取值返回的保留编码，拟合的编码从 1 开始
const UnseenCode = 0

// EncoderState 保存每个分类列的 取值 -> 编码 映射。一列一旦拟合就不再改变。
type EncoderState struct {
	mu     sync.RWMutex
	vocab  map[string]map[string]int
	frozen bool
}

func NewEncoderState() *EncoderState {
	return &EncoderState{vocab: make(map[string]map[string]int)}
}

// Fitted 判断某列是否已拟合
func (s *EncoderState) Fitted(column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vocab[column]
	return ok
}

// Fit 用 values 的去重排序结果为 column 建立映射；已拟合的列保持原样
func (s *EncoderState) Fit(column string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vocab[column]; ok {
		return nil
	}
	if s.frozen {
		return errors.Wrapf(domain.ErrEncoderFrozen, "cannot fit column %q", column)
	}

	uniq := make(map[string]struct{}, len(values))
	for _, v := range values {
		uniq[v] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for v := range uniq {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)

	mapping := make(map[string]int, len(sorted))
	for i, v := range sorted {
		mapping[v] = i + 1
	}
	s.vocab[column] = mapping
	return nil
}

// Transform 返回编码；未拟合的列或未见过的取值返回 UnseenCode 和 false
func (s *EncoderState) Transform(column, value string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.vocab[column][value]
	if !ok {
		return UnseenCode, false
	}
	return code, true
}

// Reset 清空所有映射并解除冻结，用于重新训练
func (s *EncoderState) Reset() {
	s.mu.Lock()
	s.vocab = make(map[string]map[string]int)
	s.frozen = false
	s.mu.Unlock()
}

// Freeze 之后不再接受新列的拟合
func (s *EncoderState) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

func (s *EncoderState) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// EncoderSnapshot 是 EncoderState 的可序列化形式
type EncoderSnapshot struct {
	Vocab  map[string]map[string]int `json:"vocab"`
	Frozen bool                      `json:"frozen"`
}

func (s *EncoderState) Snapshot() EncoderSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vocab := make(map[string]map[string]int, len(s.vocab))
	for col, m := range s.vocab {
		cp := make(map[string]int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		vocab[col] = cp
	}
	return EncoderSnapshot{Vocab: vocab, Frozen: s.frozen}
}

// RestoreEncoderState 从快照恢复
func RestoreEncoderState(snap EncoderSnapshot) *EncoderState {
	s := NewEncoderState()
	for col, m := range snap.Vocab {
		cp := make(map[string]int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		s.vocab[col] = cp
	}
	s.frozen = snap.Frozen
	return s
}
