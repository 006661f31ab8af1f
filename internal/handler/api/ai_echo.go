package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	"TradeSync/internal/middleware"
	"TradeSync/internal/service/ratelimit"
	"TradeSync/internal/services/backtest"
	"TradeSync/internal/services/model"
	"TradeSync/internal/usecase"
	xhttp "TradeSync/pkg/http"
	xlogger "TradeSync/pkg/logger"
	"TradeSync/pkg/queue"
)

// AIHandler serves the inference, training and model management routes.
type AIHandler struct {
	logger    *xlogger.Logger
	version   string
	signals   *usecase.SignalGenerator
	training  *usecase.TrainingService
	registry  *model.Registry
	sentiment domsvc.SentimentOracle
	limiter   *ratelimit.Limiter
	dead      queue.DeadLetterReader
}

func NewAIHandler(
	logger *xlogger.Logger,
	version string,
	signals *usecase.SignalGenerator,
	training *usecase.TrainingService,
	registry *model.Registry,
	sentiment domsvc.SentimentOracle,
	limiter *ratelimit.Limiter,
	dead queue.DeadLetterReader,
) *AIHandler {
	return &AIHandler{
		logger:    logger,
		version:   version,
		signals:   signals,
		training:  training,
		registry:  registry,
		sentiment: sentiment,
		limiter:   limiter,
		dead:      dead,
	}
}

var _ xhttp.Handler = (*AIHandler)(nil)

// errorRules maps domain sentinels to HTTP responses.
var errorRules = []xhttp.ErrorRule{
	{Target: models.ErrSeriesUnavailable, Build: xhttp.NotFoundError},
	{Target: models.ErrJobNotFound, Build: xhttp.NotFoundError},
	{Target: models.ErrInsufficientData, Build: xhttp.BadRequestError},
}

func (h *AIHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/ai")
	g.POST("/trading-signal", h.TradingSignal)
	g.GET("/trading-signal", h.SeriesSignal)
	g.POST("/model-switch/:version", h.SwitchModel)
	g.GET("/model-status", h.ModelStatus)
	g.GET("/training-status/:id", h.TrainingStatus)
	g.GET("/rl-status/:id", h.TrainingStatus)
	g.POST("/sentiment-analysis", h.Sentiment)
	g.POST("/backtest", h.Backtest)
	if h.dead != nil {
		g.GET("/training-dead-letters", h.DeadLetters)
	}

	var limit []echo.MiddlewareFunc
	if h.limiter != nil {
		limit = append(limit, middleware.RateLimit(h.limiter))
	}
	g.POST("/train-rl", h.TrainRL, limit...)
	g.POST("/train-model", h.TrainModel, limit...)
}

func (h *AIHandler) TradingSignal(c echo.Context) error {
	req := &models.TradingSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig := h.signals.Generate(c.Request().Context(), usecase.SignalRequest{
		Symbol:     req.Symbol,
		Series:     models.SeriesByTime(req.HistoricalData),
		Indicators: models.NewIndicatorSet(req.Indicators),
	})
	return xhttp.SuccessResponse(c, sig)
}

// SeriesSignal loads the series from the configured provider instead of the
// request body.
func (h *AIHandler) SeriesSignal(c echo.Context) error {
	req := &models.SeriesSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	sig, err := h.signals.GenerateForSymbol(c.Request().Context(), req.Symbol, req.N, tf, models.NewIndicatorSet(req.Indicators))
	if err != nil {
		h.logger.Warn("series signal error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err, errorRules...)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, sig)
}

type switchResponse struct {
	Status     string `json:"status"`
	NewVersion string `json:"new_version"`
}

func (h *AIHandler) SwitchModel(c echo.Context) error {
	version := c.Param("version")
	if h.registry.Switch(version) {
		h.logger.Info("model switched", xlogger.String("version", version))
		return xhttp.SuccessResponse(c, switchResponse{Status: "ok", NewVersion: version})
	}

	active := ""
	if m := h.registry.Active(); m != nil {
		active = m.Version
	}
	return xhttp.NotFoundResponse(c, switchResponse{Status: "not_found", NewVersion: active})
}

func (h *AIHandler) ModelStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.registry.Status())
}

type submitResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

func (h *AIHandler) TrainRL(c echo.Context) error {
	req := &models.TrainRLRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.training.SubmitRL(c.Request().Context(), req.TrainingData, req.Episodes)
	return h.submitted(c, job, err)
}

func (h *AIHandler) TrainModel(c echo.Context) error {
	req := &models.TrainModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	req.TrainingData = models.SeriesByTime(req.TrainingData)
	job, err := h.training.SubmitForest(c.Request().Context(), *req)
	return h.submitted(c, job, err)
}

func (h *AIHandler) submitted(c echo.Context, job *models.TrainingJob, err error) error {
	if err != nil {
		h.logger.Error("training submit error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("training queue unavailable").WithError(err))
	}
	return xhttp.AcceptedResponse(c, submitResponse{JobID: job.ID, Status: job.Status})
}

func (h *AIHandler) TrainingStatus(c echo.Context) error {
	id := c.Param("id")
	job, err := h.training.Status(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrJobNotFound) {
			h.logger.Error("training status error", xlogger.String("job_id", id), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err, errorRules...)
	}
	return xhttp.SuccessResponse(c, job)
}

type deadLetter struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"enqueued_at"`
}

// DeadLetters lists training tasks the queue gave up on.
func (h *AIHandler) DeadLetters(c echo.Context) error {
	req := &models.DeadLettersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	msgs, err := h.dead.DeadLetters(c.Request().Context(), int64(req.Limit))
	if err != nil {
		h.logger.Error("dead letters error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("training queue unavailable").WithError(err))
	}
	out := make([]deadLetter, len(msgs))
	for i, m := range msgs {
		out[i] = deadLetter{ID: m.ID, Type: m.Type, Attempts: m.Attempts, Timestamp: m.Timestamp}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *AIHandler) Sentiment(c echo.Context) error {
	req := &models.SentimentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.sentiment.Analyze(c.Request().Context(), req.Text)
	if err != nil {
		h.logger.Error("sentiment error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("sentiment analysis unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AIHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := backtest.BuyAndHold(models.SeriesByTime(req.HistoricalData))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	if req.Symbol != "" {
		res.Symbol = req.Symbol
	}
	return xhttp.SuccessResponse(c, res)
}

type healthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	Version      string `json:"version"`
	ModelsLoaded bool   `json:"models_loaded"`
}

func (h *AIHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:       "healthy",
		Service:      "tradesync",
		Version:      h.version,
		ModelsLoaded: h.registry.Active() != nil,
	})
}
