package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

// Broadcaster pushes the current watchlist to every viewer right away.
type Broadcaster interface {
	BroadcastNow(ctx context.Context) error
}

// Handler serves the watchlist mutation API and the stock options catalog.
type Handler struct {
	store       repository.SymbolStore
	broadcaster Broadcaster
	catalog     []string
	logger      *zap.Logger
}

func NewHandler(store repository.SymbolStore, broadcaster Broadcaster, catalog []string, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		broadcaster: broadcaster,
		catalog:     catalog,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/get-stock-options", h.GetStockOptions)
	r.POST("/add-symbols", h.AddSymbols)
	r.DELETE("/remove-symbol", h.RemoveSymbol)
	r.GET("/healthz", h.Health)
}

// GetStockOptions returns the fixed catalog of tickers a viewer may watch.
func (h *Handler) GetStockOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog)
}

// AddSymbols stores a batch of symbols and broadcasts if the batch committed.
func (h *Handler) AddSymbols(c *gin.Context) {
	var req protocol.AddSymbolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, "add", http.StatusBadRequest, "Symbols should be an array of strings")
		return
	}

	symbols := make([]string, len(req))
	for i, s := range req {
		symbols[i] = models.NormalizeSymbol(s)
	}
	if err := models.ValidateSymbols(symbols); err != nil {
		h.reject(c, "add", http.StatusBadRequest, "Invalid symbols: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	outcomes, err := h.store.AddSymbols(ctx, symbols)
	if err != nil {
		h.logger.Error("Error adding symbols", zap.Strings("symbols", symbols), zap.Error(err))
		h.reject(c, "add", http.StatusInternalServerError, "Error adding symbols")
		return
	}

	var added []string
	for _, o := range outcomes {
		if o.Added {
			added = append(added, o.Symbol)
		}
	}
	h.broadcast(ctx, "add")

	metrics.Mutations.WithLabelValues("add", "success").Inc()
	h.logger.Info("Symbols added", zap.Strings("requested", symbols), zap.Strings("added", added))
	resp := protocol.Success("Symbols added")
	resp.Symbols = added
	c.JSON(http.StatusCreated, resp)
}

// RemoveSymbol deletes one symbol; an unwatched symbol is a 404 and no broadcast happens.
func (h *Handler) RemoveSymbol(c *gin.Context) {
	var req protocol.RemoveSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Symbol == nil {
		h.reject(c, "remove", http.StatusBadRequest, "Symbol should be a string")
		return
	}
	symbol := models.NormalizeSymbol(*req.Symbol)

	ctx := c.Request.Context()
	err := h.store.RemoveSymbol(ctx, symbol)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.reject(c, "remove", http.StatusNotFound, "Symbol not found")
		return
	case err != nil:
		h.logger.Error("Error removing symbol", zap.String("symbol", symbol), zap.Error(err))
		h.reject(c, "remove", http.StatusInternalServerError, "Error removing symbol")
		return
	}

	h.broadcast(ctx, "remove")

	metrics.Mutations.WithLabelValues("remove", "success").Inc()
	h.logger.Info("Symbol removed", zap.String("symbol", symbol))
	c.JSON(http.StatusOK, protocol.Success(fmt.Sprintf("Symbol %s removed", symbol)))
}

// Health reports whether the symbol store answers.
func (h *Handler) Health(c *gin.Context) {
	if _, err := h.store.ListSymbols(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, protocol.Error("symbol store unavailable"))
		return
	}
	c.JSON(http.StatusOK, protocol.Success("ok"))
}

// broadcast runs after a committed mutation. Its failure does not undo the
// mutation, so it is only logged; the next tick carries the change.
// broadcast pushes the committed state. It outlives the request so a client
// hanging up after the commit does not cancel the push to other viewers.
func (h *Handler) broadcast(ctx context.Context, op string) {
	if err := h.broadcaster.BroadcastNow(context.WithoutCancel(ctx)); err != nil {
		h.logger.Warn("Broadcast after mutation failed", zap.String("op", op), zap.Error(err))
	}
}

func (h *Handler) reject(c *gin.Context, op string, code int, msg string) {
	outcome := "invalid"
	switch code {
	case http.StatusNotFound:
		outcome = "not_found"
	case http.StatusInternalServerError:
		outcome = "store_error"
	}
	metrics.Mutations.WithLabelValues(op, outcome).Inc()
	c.JSON(code, protocol.Error(msg))
}
