package train

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/govai-platform/govai/pkg/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// IsolationTrainer fits an unsupervised isolation forest. Labels are ignored
// during fitting; Contamination sets the decision offset so that that share
// of the training rows scores negative.
type IsolationTrainer struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          uint64
}

func (t IsolationTrainer) Name() string { return string(model.TypeIsolationForest) }

func (t IsolationTrainer) Train(d *Dataset) (model.Model, error) {
	p, err := checkTrainable(d)
	if err != nil {
		return nil, err
	}
	if t.Contamination < 0 || t.Contamination >= 0.5 {
		return nil, errors.Errorf("contamination must be in [0,0.5), got %v", t.Contamination)
	}
	n := len(d.TrainFeatures)
	psi := n
	if t.MaxSamples > 0 {
		psi = min(t.MaxSamples, n)
	}

	rng := newRand(t.Seed, 0x1f)
	b := &itree{
		x:     d.TrainFeatures,
		limit: int(math.Ceil(math.Log2(float64(max(psi, 2))))),
		rng:   rng,
	}
	m := &model.IsolationForest{
		NFeatures:  p,
		MaxSamples: psi,
		Offset:     model.DefaultIsolationOffset,
	}
	for range max(1, t.Trees) {
		b.nodes = nil
		b.grow(rng.Perm(n)[:psi], 0)
		m.Trees = append(m.Trees, model.Tree{Nodes: b.nodes})
	}

	if t.Contamination > 0 {
		scores := make([]float64, n)
		for i, x := range d.TrainFeatures {
			if scores[i], err = m.ScoreSamples(x); err != nil {
				return nil, err
			}
		}
		slices.Sort(scores)
		m.Offset = stat.Quantile(t.Contamination, stat.Empirical, scores, nil)
	}
	return m, nil
}

type itree struct {
	x     [][]float64
	limit int
	rng   *rand.Rand
	nodes []model.Node
}

func (t *itree) grow(idx []int, depth int) int {
	at := len(t.nodes)
	t.nodes = append(t.nodes, model.Node{Feature: leaf, Size: len(idx)})
	if depth >= t.limit || len(idx) <= 1 {
		return at
	}
	for _, f := range t.rng.Perm(len(t.x[0])) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo, hi = math.Min(lo, t.x[i][f]), math.Max(hi, t.x[i][f])
		}
		if lo == hi {
			continue
		}
		thr := lo + t.rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if t.x[i][f] <= thr {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		l := t.grow(left, depth+1)
		r := t.grow(right, depth+1)
		t.nodes[at] = model.Node{Feature: f, Threshold: thr, Left: l, Right: r}
		return at
	}
	return at
}
