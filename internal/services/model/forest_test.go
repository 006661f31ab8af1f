package model

import (
	"math"
	"math/rand"
	"testing"
)

func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		x0 := rng.Float64()*3 - 1.5
		X[i] = []float64{x0, rng.NormFloat64(), rng.NormFloat64()}
		switch {
		case x0 < -0.5:
			y[i] = 0
		case x0 > 0.5:
			y[i] = 2
		default:
			y[i] = 1
		}
	}
	return X, y
}

func TestForestLearnsSeparableClasses(t *testing.T) {
	X, y := separable(400, 1)
	f, err := FitForest(X, y, 3, ForestParams{Estimators: 15, MaxDepth: 6, MaxFeatures: 3, Seed: 7})
	if err != nil {
		t.Fatalf("FitForest returned error: %v", err)
	}

	cases := []struct {
		x    []float64
		want int
	}{
		{[]float64{-1.2, 0, 0}, 0},
		{[]float64{0, 0, 0}, 1},
		{[]float64{1.2, 0, 0}, 2},
	}
	for _, c := range cases {
		p, err := f.PredictProba(c.x)
		if err != nil {
			t.Fatalf("PredictProba returned error: %v", err)
		}
		if argmax(p) != c.want {
			t.Fatalf("x=%v: expected class %d, got probs %v", c.x, c.want, p)
		}
	}
}

func TestForestProbabilitiesSumToOne(t *testing.T) {
	f, err := Bootstrap(ForestParams{Estimators: 5, MaxDepth: 4, Seed: 42}, 200, 10, 3)
	if err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		x := make([]float64, 10)
		for j := range x {
			x[j] = rng.NormFloat64()
		}
		p, err := f.PredictProba(x)
		if err != nil {
			t.Fatalf("PredictProba returned error: %v", err)
		}
		sum := 0.0
		for _, v := range p {
			if v < 0 || v > 1 {
				t.Fatalf("probability out of range: %v", p)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("probabilities sum to %v", sum)
		}
	}
}

func TestBootstrapIsDeterministic(t *testing.T) {
	p := ForestParams{Estimators: 3, MaxDepth: 3, Seed: 42}
	a, _ := Bootstrap(p, 100, 10, 3)
	b, _ := Bootstrap(p, 100, 10, 3)
	x := []float64{0.1, -0.2, 0.3, 0, 1, -1, 0.5, 0.2, -0.4, 0.9}
	pa, _ := a.PredictProba(x)
	pb, _ := b.PredictProba(x)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("same seed produced different forests: %v vs %v", pa, pb)
		}
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	f, _ := Bootstrap(ForestParams{Estimators: 1, MaxDepth: 2, Seed: 1}, 50, 10, 3)
	if _, err := f.PredictProba([]float64{1, 2}); err == nil {
		t.Fatalf("expected width error")
	}
}

func TestFitForestValidatesInput(t *testing.T) {
	if _, err := FitForest([][]float64{{1}}, []int{5}, 3, DefaultForestParams()); err == nil {
		t.Fatalf("expected label range error")
	}
	if _, err := FitForest(nil, nil, 3, DefaultForestParams()); err == nil {
		t.Fatalf("expected empty input error")
	}
}

func TestArtifactRoundTripAndValidation(t *testing.T) {
	f, _ := Bootstrap(ForestParams{Estimators: 2, MaxDepth: 3, Seed: 9}, 80, 10, 3)
	blob, err := EncodeArtifact("v1", f, Metadata{Source: SourceTrained, Samples: 80})
	if err != nil {
		t.Fatalf("EncodeArtifact returned error: %v", err)
	}
	got, meta, err := DecodeArtifact(blob)
	if err != nil {
		t.Fatalf("DecodeArtifact returned error: %v", err)
	}
	if meta.Source != SourceTrained || meta.Family != FamilyRandomForest || len(got.Trees) != 2 {
		t.Fatalf("unexpected decoded artifact: %+v", meta)
	}

	got.Trees[0].Feature[0] = 99
	if !got.Trees[0].IsLeaf(0) {
		if err := got.validate(); err == nil {
			t.Fatalf("expected out-of-range feature to be rejected")
		}
	}
	if _, _, err := DecodeArtifact([]byte(`{"metadata":{"family":"mlp"}}`)); err == nil {
		t.Fatalf("expected unsupported family error")
	}
}

func argmax(p []float64) int {
	best := 0
	for i := range p {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}
