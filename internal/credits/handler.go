package credits

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otgil/rethread/internal/middleware"
	"github.com/otgil/rethread/internal/models"
	"github.com/otgil/rethread/pkg/response"
)

// Ledger is the read side of the credits store.
type Ledger interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.Credit, error)
}

// BalanceResponse is the body of GET /credits/me/balance.
type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Balance int       `json:"balance"`
}

// Handler serves the caller's credit ledger.
type Handler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewHandler creates a credits handler.
func NewHandler(ledger Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// Routes mounts the credit endpoints behind authn.
func (h *Handler) Routes(r gin.IRouter, authn gin.HandlerFunc) {
	g := r.Group("/credits/me", authn)
	g.GET("/balance", h.Balance)
	g.GET("/history", h.History)
}

// Balance handles GET /credits/me/balance.
func (h *Handler) Balance(c *gin.Context) {
	userID := middleware.CurrentIdentity(c).UserID
	total, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("credit balance failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to load balance")
		return
	}
	response.OK(c, BalanceResponse{UserID: userID, Balance: total})
}

// History handles GET /credits/me/history.
func (h *Handler) History(c *gin.Context) {
	userID := middleware.CurrentIdentity(c).UserID
	list, err := h.ledger.History(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("credit history failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to load history")
		return
	}
	response.OK(c, list)
}
