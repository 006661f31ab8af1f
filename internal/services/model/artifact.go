package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FamilyRandomForest is the only family the registry can currently decode.
const FamilyRandomForest = "random_forest"

const (
	SourceBootstrap = "bootstrap"
	SourceTrained   = "trained"
)

type Metadata struct {
	Family     string    `json:"family"`
	Source     string    `json:"source"`
	TrainedAt  time.Time `json:"trained_at"`
	Estimators int       `json:"estimators"`
	MaxDepth   int       `json:"max_depth"`
	Samples    int       `json:"samples"`
}

type artifact struct {
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
	Forest   *Forest  `json:"forest"`
}

// EncodeArtifact serializes a forest and its metadata for a ModelStore.
func EncodeArtifact(version string, f *Forest, meta Metadata) ([]byte, error) {
	meta.Family = FamilyRandomForest
	b, err := json.Marshal(artifact{Version: version, Metadata: meta, Forest: f})
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", version, err)
	}
	return b, nil
}

// DecodeArtifact parses and structurally validates a stored forest.
func DecodeArtifact(blob []byte) (*Forest, Metadata, error) {
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, Metadata{}, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Metadata.Family != FamilyRandomForest {
		return nil, Metadata{}, fmt.Errorf("decode artifact: unsupported family %q", a.Metadata.Family)
	}
	if a.Forest == nil {
		return nil, Metadata{}, fmt.Errorf("decode artifact: missing forest")
	}
	if err := a.Forest.validate(); err != nil {
		return nil, Metadata{}, fmt.Errorf("decode artifact %s: %w", a.Version, err)
	}
	return a.Forest, a.Metadata, nil
}

func (f *Forest) validate() error {
	if f.Features <= 0 || f.Classes < 2 || len(f.Trees) == 0 {
		return fmt.Errorf("bad forest shape: features=%d classes=%d trees=%d", f.Features, f.Classes, len(f.Trees))
	}
	for ti, t := range f.Trees {
		if t == nil {
			return fmt.Errorf("tree %d missing", ti)
		}
		n := len(t.Left)
		if n == 0 || len(t.Right) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n || len(t.Cover) != n {
			return fmt.Errorf("tree %d: inconsistent node arrays", ti)
		}
		for i := 0; i < n; i++ {
			if len(t.Value[i]) != f.Classes {
				return fmt.Errorf("tree %d node %d: value has %d classes", ti, i, len(t.Value[i]))
			}
			if t.IsLeaf(i) {
				continue
			}
			// children are always appended after their parent
			if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= f.Features {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, i, t.Feature[i])
			}
		}
	}
	return nil
}
