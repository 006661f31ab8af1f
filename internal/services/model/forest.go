package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Tree is a fitted CART classification tree stored as parallel arrays.
// Node 0 is the root; Left[i] == -1 marks a leaf. Samples with
// x[Feature[i]] <= Threshold[i] go left.
type Tree struct {
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Value     [][]float64 `json:"value"` // class distribution at the node
	Cover     []float64   `json:"cover"` // training samples that reached the node
}

func (t *Tree) IsLeaf(node int) bool { return t.Left[node] < 0 }

// Leaf returns the index of the leaf x falls into.
func (t *Tree) Leaf(x []float64) int {
	node := 0
	for !t.IsLeaf(node) {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return node
}

func (t *Tree) addNode(value []float64, cover float64) int {
	t.Left = append(t.Left, -1)
	t.Right = append(t.Right, -1)
	t.Feature = append(t.Feature, -1)
	t.Threshold = append(t.Threshold, 0)
	t.Value = append(t.Value, value)
	t.Cover = append(t.Cover, cover)
	return len(t.Left) - 1
}

// Forest is a bagged ensemble of trees; probabilities are the mean of the
// leaf distributions.
type Forest struct {
	Trees    []*Tree `json:"trees"`
	Features int     `json:"n_features"`
	Classes  int     `json:"n_classes"`
}

func (f *Forest) NumFeatures() int { return f.Features }

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.Features {
		return nil, fmt.Errorf("predict: expected %d features, got %d", f.Features, len(x))
	}
	if len(f.Trees) == 0 {
		return nil, errors.New("predict: empty forest")
	}
	out := make([]float64, f.Classes)
	for _, t := range f.Trees {
		leaf := t.Value[t.Leaf(x)]
		for k := range out {
			out[k] += leaf[k]
		}
	}
	n := float64(len(f.Trees))
	for k := range out {
		out[k] /= n
	}
	return out, nil
}

type ForestParams struct {
	Estimators      int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int // 0 means floor(sqrt(n_features))
	Seed            int64
}

func DefaultForestParams() ForestParams {
	return ForestParams{Estimators: 100, MaxDepth: 10, MinSamplesSplit: 2, Seed: 42}
}

// FitForest trains a random forest on X (rows) with labels y in [0, classes).
// Each tree sees a bootstrap resample and a random feature subset per split.
func FitForest(X [][]float64, y []int, classes int, p ForestParams) (*Forest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("fit: %d rows and %d labels", len(X), len(y))
	}
	if classes < 2 {
		return nil, fmt.Errorf("fit: need at least 2 classes, got %d", classes)
	}
	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), nf)
		}
		if y[i] < 0 || y[i] >= classes {
			return nil, fmt.Errorf("fit: label %d out of range at row %d", y[i], i)
		}
	}
	if p.Estimators <= 0 || p.MaxDepth <= 0 {
		return nil, fmt.Errorf("fit: estimators and max depth must be positive")
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > nf {
		p.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nf)))))
	}

	f := &Forest{Features: nf, Classes: classes, Trees: make([]*Tree, p.Estimators)}
	for i := range f.Trees {
		b := &treeBuilder{
			X:       X,
			y:       y,
			classes: classes,
			params:  p,
			rng:     rand.New(rand.NewSource(p.Seed + int64(i))),
			tree:    &Tree{},
		}
		idx := make([]int, len(X))
		for j := range idx {
			idx[j] = b.rng.Intn(len(X))
		}
		b.grow(idx, 0)
		f.Trees[i] = b.tree
	}
	return f, nil
}

type treeBuilder struct {
	X       [][]float64
	y       []int
	classes int
	params  ForestParams
	rng     *rand.Rand
	tree    *Tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	counts := make([]float64, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	n := float64(len(idx))
	value := make([]float64, b.classes)
	for k, c := range counts {
		value[k] = c / n
	}
	node := b.tree.addNode(value, n)

	if depth >= b.params.MaxDepth || len(idx) < b.params.MinSamplesSplit || gini(counts, n) == 0 {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return node
	}

	b.tree.Feature[node] = feature
	b.tree.Threshold[node] = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

func (b *treeBuilder) bestSplit(idx []int, parentCounts []float64) (int, float64, bool) {
	n := float64(len(idx))
	best := gini(parentCounts, n) * n
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := make([]int, len(idx))
	leftCounts := make([]float64, b.classes)
	rightCounts := make([]float64, b.classes)

	for _, f := range b.rng.Perm(len(b.X[0]))[:b.params.MaxFeatures] {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		for k := range leftCounts {
			leftCounts[k] = 0
		}
		copy(rightCounts, parentCounts)

		for pos := 0; pos < len(sorted)-1; pos++ {
			c := b.y[sorted[pos]]
			leftCounts[c]++
			rightCounts[c]--

			cur, next := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			nl := float64(pos + 1)
			nr := n - nl
			score := gini(leftCounts, nl)*nl + gini(rightCounts, nr)*nr
			if score < best-1e-12 {
				best = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

// Bootstrap fits a placeholder forest on seeded standard-normal features with
// uniform random labels. It exists so inference has something to run before
// a real model is trained; its predictions carry no market information.
func Bootstrap(p ForestParams, samples, features, classes int) (*Forest, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	X := make([][]float64, samples)
	y := make([]int, samples)
	for i := range X {
		row := make([]float64, features)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		X[i] = row
		y[i] = rng.Intn(classes)
	}
	return FitForest(X, y, classes, p)
}
