package models

// Requests for the /ai HTTP endpoints.

type TradingSignalRequest struct {
	Symbol         string            `json:"symbol" validate:"required"`
	HistoricalData []MarketDataPoint `json:"historical_data" validate:"dive"`
	CurrentPrice   float64           `json:"current_price" validate:"gte=0"`
	Indicators     map[string]int    `json:"indicators"`
}

type SeriesSignalRequest struct {
	Symbol     string         `query:"symbol" json:"symbol" validate:"required"`
	N          int            `query:"n" json:"n" default:"100" validate:"gte=1,lte=5000"`
	TF         string         `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Indicators map[string]int `query:"-" json:"indicators"`
}

type TrainRLRequest struct {
	TrainingData [][]float64 `json:"training_data"`
	Episodes     int         `json:"episodes" validate:"gte=0,lte=10000"`
}

type DeadLettersRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

type TrainModelRequest struct {
	ModelName    string            `json:"model_name" validate:"required,max=64,excludesall=/\\"`
	TrainingData []MarketDataPoint `json:"training_data" validate:"required,dive"`
	Horizon      int               `json:"horizon" default:"5" validate:"gte=1,lte=500"`
	Threshold    float64           `json:"threshold" default:"0.001" validate:"gte=0,lte=1"`
	Estimators   int               `json:"n_estimators" default:"50" validate:"gte=1,lte=500"`
	MaxDepth     int               `json:"max_depth" default:"8" validate:"gte=1,lte=20"`
	Activate     bool              `json:"activate"`
}

type SentimentRequest struct {
	Text   string `json:"text" validate:"required,max=20000"`
	Source string `json:"source"`
}

type SentimentResult struct {
	Sentiment  string   `json:"sentiment"` // BULLISH, BEARISH, NEUTRAL
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	KeyPhrases []string `json:"key_phrases"`
	Source     string   `json:"source"`
}

type BacktestRequest struct {
	Symbol         string            `json:"symbol"`
	HistoricalData []MarketDataPoint `json:"historical_data" validate:"required,min=2,dive"`
}

type BacktestResult struct {
	Symbol       string  `json:"symbol,omitempty"`
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Observations int     `json:"observations"`
}
