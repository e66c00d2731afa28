package predictor

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Params 梯度提升树超参数，含义与 XGBoost 同名参数一致
type Params struct {
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	NEstimators         int     `json:"n_estimators"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_bytree"`
	MinChildWeight      float64 `json:"min_child_weight"`
	Gamma               float64 `json:"gamma"`
	RegAlpha            float64 `json:"reg_alpha"`
	RegLambda           float64 `json:"reg_lambda"`
	Seed                int64   `json:"random_state"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	MaxBins             int     `json:"max_bin"`
}

func DefaultParams() Params {
	return Params{
		MaxDepth:            6,
		LearningRate:        0.05,
		NEstimators:         500,
		Subsample:           0.8,
		ColsampleByTree:     0.8,
		MinChildWeight:      3,
		Gamma:               0.1,
		RegAlpha:            0.1,
		RegLambda:           1.0,
		Seed:                42,
		EarlyStoppingRounds: 50,
		MaxBins:             256,
	}
}

// AsStrings 便于作为 run 参数登记
func (p Params) AsStrings() map[string]string {
	f := func(v float64) string { return formatFloat(v) }
	return map[string]string{
		"objective":             "reg:squarederror",
		"tree_method":           "hist",
		"max_depth":             itoa(p.MaxDepth),
		"learning_rate":         f(p.LearningRate),
		"n_estimators":          itoa(p.NEstimators),
		"subsample":             f(p.Subsample),
		"colsample_bytree":      f(p.ColsampleByTree),
		"min_child_weight":      f(p.MinChildWeight),
		"gamma":                 f(p.Gamma),
		"reg_alpha":             f(p.RegAlpha),
		"reg_lambda":            f(p.RegLambda),
		"random_state":          itoa(int(p.Seed)),
		"early_stopping_rounds": itoa(p.EarlyStoppingRounds),
	}
}

// Node 是扁平存储的树节点；Leaf 为 true 时只有 Value 有意义
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBM 平方误差目标的梯度提升回归树，分裂点在直方图分箱上寻找
type GBM struct {
	Params        Params    `json:"params"`
	NumFeatures   int       `json:"num_features"`
	BaseScore     float64   `json:"base_score"`
	Trees         []Tree    `json:"trees"`
	BestIteration int       `json:"best_iteration"`
	Gain          []float64 `json:"gain"`
}

// EvalSet 用于早停的验证集
type EvalSet struct {
	X [][]float64
	Y []float64
}

func NewGBM(params Params) *GBM {
	return &GBM{Params: params}
}

// Fit 训练模型；eval 非空且配置了早停时，验证集 RMSE 连续 N 轮不下降则停止并截断到最佳轮次
func (m *GBM) Fit(X [][]float64, y []float64, eval *EvalSet) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.Errorf("gbm: invalid training set (%d rows, %d targets)", len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return errors.New("gbm: no feature columns")
	}
	p := m.Params
	m.NumFeatures = nf
	m.Trees = m.Trees[:0]
	m.Gain = make([]float64, nf)
	m.BaseScore = mean(y)

	cuts := buildCuts(X, p.MaxBins)
	bins := binMatrix(X, cuts)
	rng := rand.New(rand.NewSource(p.Seed))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.BaseScore
	}
	grad := make([]float64, len(y))

	var evalPred []float64
	useEval := eval != nil && len(eval.X) > 0 && p.EarlyStoppingRounds > 0
	if useEval {
		evalPred = make([]float64, len(eval.X))
		for i := range evalPred {
			evalPred[i] = m.BaseScore
		}
	}
	bestScore := math.Inf(1)
	m.BestIteration = -1

	b := &treeBuilder{params: p, bins: bins, cuts: cuts, grad: grad, gain: m.Gain}
	for iter := 0; iter < p.NEstimators; iter++ {
		// 1. 平方误差：g = pred - y, h = 1
		for i := range y {
			grad[i] = pred[i] - y[i]
		}

		// 2. 行、列采样
		rows := sampleRows(rng, len(y), p.Subsample)
		b.features = sampleColumns(rng, nf, p.ColsampleByTree)

		// 3. 建树并更新预测
		tree := b.build(rows)
		m.Trees = append(m.Trees, tree)
		for i := range X {
			pred[i] += tree.predict(X[i])
		}

		if !useEval {
			continue
		}
		for i := range eval.X {
			evalPred[i] += tree.predict(eval.X[i])
		}
		score := RMSE(eval.Y, evalPred)
		if score < bestScore {
			bestScore = score
			m.BestIteration = iter
		} else if iter-m.BestIteration >= p.EarlyStoppingRounds {
			break
		}
	}
	if useEval && m.BestIteration >= 0 {
		m.Trees = m.Trees[:m.BestIteration+1]
	} else {
		m.BestIteration = len(m.Trees) - 1
	}
	return nil
}

// Predict 对每一行求和所有树的输出
func (m *GBM) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		v := m.BaseScore
		for t := range m.Trees {
			v += m.Trees[t].predict(x)
		}
		out[i] = v
	}
	return out
}

// Importance 返回每个特征的累计分裂增益
func (m *GBM) Importance() []float64 {
	return append([]float64(nil), m.Gain...)
}

type treeBuilder struct {
	params   Params
	bins     [][]uint16 // [row][feature]
	cuts     [][]float64
	grad     []float64
	features []int
	gain     []float64
	nodes    []Node
}

func (b *treeBuilder) build(rows []int) Tree {
	b.nodes = make([]Node, 0, 64)
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	var G float64
	for _, r := range rows {
		G += b.grad[r]
	}
	H := float64(len(rows))

	split, ok := b.bestSplit(rows, G, H, depth)
	if !ok {
		b.nodes[idx] = Node{Leaf: true, Value: b.params.LearningRate * b.leafWeight(G, H)}
		return idx
	}

	left := make([]int, 0, split.leftCount)
	right := make([]int, 0, len(rows)-split.leftCount)
	for _, r := range rows {
		if int(b.bins[r][split.feature]) <= split.bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	b.gain[split.feature] += split.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{Feature: split.feature, Threshold: b.cuts[split.feature][split.bin], Left: l, Right: r}
	return idx
}

type splitCandidate struct {
	feature   int
	bin       int
	gain      float64
	leftCount int
}

func (b *treeBuilder) bestSplit(rows []int, G, H float64, depth int) (splitCandidate, bool) {
	p := b.params
	best := splitCandidate{gain: 0}
	if depth >= p.MaxDepth || H < 2*p.MinChildWeight {
		return best, false
	}
	parent := b.score(G, H)
	found := false

	for _, f := range b.features {
		nb := len(b.cuts[f]) + 1
		if nb < 2 {
			continue
		}
		hg := make([]float64, nb)
		hh := make([]float64, nb)
		for _, r := range rows {
			bin := b.bins[r][f]
			hg[bin] += b.grad[r]
			hh[bin]++
		}
		var GL, HL float64
		// 最后一个分箱之后没有切分点
		for bin := 0; bin < len(b.cuts[f]); bin++ {
			GL += hg[bin]
			HL += hh[bin]
			HR := H - HL
			if HL < p.MinChildWeight {
				continue
			}
			if HR < p.MinChildWeight {
				break
			}
			gain := 0.5*(b.score(GL, HL)+b.score(G-GL, HR)-parent) - p.Gamma
			if gain > best.gain {
				best = splitCandidate{feature: f, bin: bin, gain: gain, leftCount: int(HL)}
				found = true
			}
		}
	}
	return best, found
}

func (b *treeBuilder) leafWeight(G, H float64) float64 {
	return -thresholdL1(G, b.params.RegAlpha) / (H + b.params.RegLambda)
}

func (b *treeBuilder) score(G, H float64) float64 {
	t := thresholdL1(G, b.params.RegAlpha)
	return t * t / (H + b.params.RegLambda)
}

func thresholdL1(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	}
	return 0
}

// buildCuts 每个特征的切分点：取值个数不超过 maxBins 时使用全部取值，否则取分位点
func buildCuts(X [][]float64, maxBins int) [][]float64 {
	if maxBins <= 1 {
		maxBins = 256
	}
	nf := len(X[0])
	cuts := make([][]float64, nf)
	col := make([]float64, len(X))
	for f := 0; f < nf; f++ {
		for i := range X {
			col[i] = X[i][f]
		}
		sort.Float64s(col)
		uniq := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				uniq = append(uniq, v)
			}
		}
		if len(uniq) <= maxBins {
			cuts[f] = uniq
			continue
		}
		qs := make([]float64, 0, maxBins)
		for q := 1; q <= maxBins; q++ {
			v := col[(len(col)-1)*q/maxBins]
			if len(qs) == 0 || v != qs[len(qs)-1] {
				qs = append(qs, v)
			}
		}
		cuts[f] = qs
	}
	return cuts
}

// binMatrix 分箱：bin k 覆盖 (cuts[k-1], cuts[k]]
func binMatrix(X [][]float64, cuts [][]float64) [][]uint16 {
	out := make([][]uint16, len(X))
	for i, x := range X {
		row := make([]uint16, len(x))
		for f, v := range x {
			row[f] = uint16(sort.SearchFloat64s(cuts[f], v))
		}
		out[i] = row
	}
	return out
}

func sampleRows(rng *rand.Rand, n int, ratio float64) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if ratio >= 1 || rng.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

func sampleColumns(rng *rand.Rand, n int, ratio float64) []int {
	k := int(math.Floor(float64(n) * ratio))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}
