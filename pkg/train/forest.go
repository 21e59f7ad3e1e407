package train

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/govai-platform/govai/pkg/model"
)

// ForestTrainer grows a random forest of gini CART trees on bootstrap samples,
// considering sqrt(features) candidate features per split.
type ForestTrainer struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     uint64
}

func (t ForestTrainer) Name() string { return string(model.TypeRandomForest) }

func (t ForestTrainer) Train(d *Dataset) (model.Model, error) {
	p, err := checkTrainable(d)
	if err != nil {
		return nil, err
	}
	rng := newRand(t.Seed, 0xf0)
	c := &cart{
		x:        d.TrainFeatures,
		y:        d.TrainLabels,
		maxDepth: max(1, t.MaxDepth),
		minLeaf:  max(1, t.MinLeaf),
		mtry:     max(1, int(math.Sqrt(float64(p)))),
		rng:      rng,
	}

	forest := &model.RandomForest{NFeatures: p}
	n := len(d.TrainFeatures)
	for range max(1, t.Trees) {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		c.nodes = nil
		c.grow(idx, 0)
		forest.Trees = append(forest.Trees, model.Tree{Nodes: c.nodes})
	}
	return forest, nil
}

type cart struct {
	x        [][]float64
	y        []int
	maxDepth int
	minLeaf  int
	mtry     int
	rng      *rand.Rand
	nodes    []model.Node
}

// grow appends the subtree for idx and returns its root index. Children are
// always appended after their parent.
func (c *cart) grow(idx []int, depth int) int {
	counts := c.counts(idx)
	at := len(c.nodes)
	c.nodes = append(c.nodes, model.Node{Feature: leaf, Value: []float64{counts[0], counts[1]}})
	if depth >= c.maxDepth || len(idx) < 2*c.minLeaf || counts[0] == 0 || counts[1] == 0 {
		return at
	}
	feat, thr, ok := c.bestSplit(idx, counts)
	if !ok {
		return at
	}

	var left, right []int
	for _, i := range idx {
		if c.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := c.grow(left, depth+1)
	r := c.grow(right, depth+1)
	c.nodes[at] = model.Node{Feature: feat, Threshold: thr, Left: l, Right: r}
	return at
}

func (c *cart) counts(idx []int) [2]float64 {
	var out [2]float64
	for _, i := range idx {
		out[c.y[i]]++
	}
	return out
}

func (c *cart) bestSplit(idx []int, counts [2]float64) (int, float64, bool) {
	n := float64(len(idx))
	best := gini(counts, n)
	var (
		bestFeat int
		bestThr  float64
		found    bool
	)
	order := make([]int, len(idx))
	for _, f := range c.rng.Perm(len(c.x[0]))[:c.mtry] {
		copy(order, idx)
		slices.SortFunc(order, func(a, b int) int { return cmp.Compare(c.x[a][f], c.x[b][f]) })

		var left [2]float64
		for k := 0; k < len(order)-1; k++ {
			left[c.y[order[k]]]++
			v, next := c.x[order[k]][f], c.x[order[k+1]][f]
			if v == next {
				continue
			}
			nl := k + 1
			if nl < c.minLeaf || len(order)-nl < c.minLeaf {
				continue
			}
			right := [2]float64{counts[0] - left[0], counts[1] - left[1]}
			fl := float64(nl)
			score := (fl*gini(left, fl) + (n-fl)*gini(right, n-fl)) / n
			if score < best-1e-12 {
				best, bestFeat, bestThr, found = score, f, v+(next-v)/2, true
			}
		}
	}
	return bestFeat, bestThr, found
}

func gini(c [2]float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	p0, p1 := c[0]/n, c[1]/n
	return 1 - p0*p0 - p1*p1
}
