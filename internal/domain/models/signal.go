package models

// SignalLabel is the trading recommendation.
type SignalLabel string

const (
	LabelSell SignalLabel = "SELL"
	LabelHold SignalLabel = "HOLD"
	LabelBuy  SignalLabel = "BUY"
)

// RuleBasedVersion tags signals produced without a model.
const RuleBasedVersion = "rule-based-1.0"

// classLabels maps model class indices to labels.
var classLabels = [...]SignalLabel{LabelSell, LabelHold, LabelBuy}

// NumClasses is the number of classes every classifier must score.
const NumClasses = len(classLabels)

// LabelForClass maps a class index to its label.
func LabelForClass(class int) (SignalLabel, bool) {
	if class < 0 || class >= len(classLabels) {
		return "", false
	}
	return classLabels[class], true
}

// Class is the inverse of LabelForClass. Unknown labels return -1.
func (l SignalLabel) Class() int {
	for i, c := range classLabels {
		if c == l {
			return i
		}
	}
	return -1
}

func (l SignalLabel) Valid() bool { return l.Class() >= 0 }

// Signal is the outcome of one generation request.
type Signal struct {
	Label             SignalLabel `json:"signal"`
	Confidence        float64     `json:"confidence"`
	Reasoning         string      `json:"reasoning"`
	ModelVersion      string      `json:"model_version"`
	FeatureImportance []float64   `json:"feature_importance,omitempty"`
}

// Signal sources, used as metric labels.
const (
	SourceModel     = "model"
	SourceRuleBased = "rule_based"
	SourceCache     = "cache"
)

// ModelStatus summarizes the registry for the status endpoint.
type ModelStatus struct {
	ModelsLoaded  bool     `json:"models_loaded"`
	ActiveVersion string   `json:"active_version,omitempty"`
	Bootstrap     bool     `json:"bootstrap"`
	Source        string   `json:"source,omitempty"`
	TrainedAt     int64    `json:"trained_at,omitempty"`
	Versions      []string `json:"versions"`
}
