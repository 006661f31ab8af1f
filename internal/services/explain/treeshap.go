package explain

import (
	"math"

	"TradeSync/internal/domain/service"
	"TradeSync/internal/services/model"
)

// TreeExplainer computes exact path-dependent Shapley values for tree
// ensembles (Lundberg et al., "Consistent Individualized Feature Attribution
// for Tree Ensembles"). Other classifier families are not supported.
type TreeExplainer struct{}

var _ service.Explainer = TreeExplainer{}

func NewTreeExplainer() TreeExplainer { return TreeExplainer{} }

// Explain returns one attribution per feature for class. The attributions
// plus ExpectedValue add up to the forest's probability for class at x.
func (TreeExplainer) Explain(c service.Classifier, x []float64, class int) ([]float64, bool) {
	f, ok := c.(*model.Forest)
	if !ok || len(x) != f.Features || class < 0 || class >= f.Classes || len(f.Trees) == 0 {
		return nil, false
	}

	phi := make([]float64, f.Features)
	treePhi := make([]float64, f.Features)
	for _, t := range f.Trees {
		for i := range treePhi {
			treePhi[i] = 0
		}
		s := shapState{tree: t, x: x, class: class, phi: treePhi}
		s.recurse(0, nil, 1, 1, -1)
		for i, v := range treePhi {
			phi[i] += v
		}
	}

	n := float64(len(f.Trees))
	for i := range phi {
		phi[i] /= n
		if math.IsNaN(phi[i]) || math.IsInf(phi[i], 0) {
			return nil, false
		}
	}
	return phi, true
}

// ExpectedValue is the cover-weighted mean prediction of the forest for class.
func ExpectedValue(f *model.Forest, class int) float64 {
	sum := 0.0
	for _, t := range f.Trees {
		root := t.Cover[0]
		for i := range t.Left {
			if t.IsLeaf(i) && root > 0 {
				sum += t.Cover[i] / root * t.Value[i][class]
			}
		}
	}
	return sum / float64(len(f.Trees))
}

type pathElement struct {
	feature int
	zero    float64 // fraction of "feature missing" paths flowing through
	one     float64 // fraction of "feature present" paths flowing through
	weight  float64
}

type shapState struct {
	tree  *model.Tree
	x     []float64
	class int
	phi   []float64
}

func (s *shapState) recurse(node int, parent []pathElement, zero, one float64, feature int) {
	path := make([]pathElement, len(parent)+1)
	copy(path, parent)
	depth := len(parent)
	extendPath(path, depth, zero, one, feature)

	t := s.tree
	if t.IsLeaf(node) {
		v := t.Value[node][s.class]
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			s.phi[el.feature] += w * (el.one - el.zero) * v
		}
		return
	}

	split := t.Feature[node]
	hot, cold := t.Left[node], t.Right[node]
	if s.x[split] > t.Threshold[node] {
		hot, cold = cold, hot
	}
	cover := t.Cover[node]
	hotZero := t.Cover[hot] / cover
	coldZero := t.Cover[cold] / cover

	inZero, inOne := 1.0, 1.0
	for k := 1; k <= depth; k++ {
		if path[k].feature == split {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			path = path[:depth]
			break
		}
	}

	s.recurse(hot, path, hotZero*inZero, inOne, split)
	s.recurse(cold, path, coldZero*inZero, 0, split)
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	w := 0.0
	if depth == 0 {
		w = 1
	}
	path[depth] = pathElement{feature: feature, zero: zero, one: one, weight: w}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(depth+1)
		path[i].weight = zero * path[i].weight * float64(depth-i) / float64(depth+1)
	}
}

func unwindPath(path []pathElement, depth, index int) {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].weight = path[i].weight * float64(depth+1) / (zero * float64(depth-i))
		}
	}
	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElement, depth, index int) float64 {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight
	total := 0.0

	for i := depth - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/float64(depth+1)
		case zero != 0:
			total += path[i].weight / zero / (float64(depth-i) / float64(depth+1))
		}
	}
	return total
}
