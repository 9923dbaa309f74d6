package api

import (
	"context"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	models "MicroTrader/internal/domain/models"
	domrepo "MicroTrader/internal/domain/repository"
	"MicroTrader/internal/usecase"
	xhttp "MicroTrader/pkg/http"
	xlogger "MicroTrader/pkg/logger"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// OpsEchoHandler serves the operator endpoints: health, halt state,
// pending entries and archived trade events.
type OpsEchoHandler struct {
	logger *xlogger.Logger
	exec   *usecase.Executor
	events domrepo.TradeEventStore
	checks map[string]HealthCheck
}

// NewOpsEchoHandler builds the handler. events may be nil when the archive
// is disabled.
func NewOpsEchoHandler(logger *xlogger.Logger, exec *usecase.Executor, events domrepo.TradeEventStore) *OpsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OpsEchoHandler{logger: logger, exec: exec, events: events, checks: make(map[string]HealthCheck)}
}

// AddCheck registers a named dependency probe for /api/health.
func (h *OpsEchoHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *OpsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/halt", h.Halt)
	g.POST("/halt/clear", h.ClearHalt)
	g.GET("/pending", h.Pending)
	g.GET("/trades", h.Trades)
}

type healthResponse struct {
	Status string            `json:"status"`
	Halted bool              `json:"halted"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *OpsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Halted: h.exec.Halt().Snapshot().Halted}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("check", name), xlogger.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *OpsEchoHandler) Halt(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.exec.Halt().Snapshot().Status())
}

type clearHaltResponse struct {
	Cleared bool              `json:"cleared"`
	Status  models.HaltStatus `json:"status"`
}

func (h *OpsEchoHandler) ClearHalt(c echo.Context) error {
	cleared := h.exec.ClearHalt(c.Request().Context(), "manual_clear")
	return xhttp.SuccessResponse(c, clearHaltResponse{
		Cleared: cleared,
		Status:  h.exec.Halt().Snapshot().Status(),
	})
}

func (h *OpsEchoHandler) Pending(c echo.Context) error {
	rows := h.exec.Pending().List()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *OpsEchoHandler) Trades(c echo.Context) error {
	req := &models.TradeHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.events == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("trade archive is disabled"))
	}
	rows, err := h.events.Recent(c.Request().Context(), models.NormalizeSymbol(req.Symbol), req.Limit)
	if err != nil {
		h.logger.Error("trade history query error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("trade history unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

var _ xhttp.Handler = (*OpsEchoHandler)(nil)
