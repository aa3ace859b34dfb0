package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/webxv/backend/internal/ledger"
	"github.com/webxv/backend/internal/middleware"
	"github.com/webxv/backend/internal/models"
)

// PointsTransferer is the slice of the points ledger the handler needs.
type PointsTransferer interface {
	Transfer(ctx context.Context, senderID, recipientID uuid.UUID, points, fee int64, opts ledger.TransferOptions) (*ledger.PointsTransferResult, error)
}

// TokenTransferer is the slice of the token ledger the handler needs.
type TokenTransferer interface {
	Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount, fee, gasFee decimal.Decimal, opts ledger.TransferOptions) (*ledger.TokenTransferResult, error)
}

// PointsTxLister lists an account's points ledger entries.
type PointsTxLister interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.PointsTransaction, error)
}

// TokenTxLister lists an account's token ledger entries.
type TokenTxLister interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.TokenTransaction, error)
}

// WalletHandler serves /v1/wallet endpoints.
type WalletHandler struct {
	Points   PointsTransferer
	Tokens   TokenTransferer
	PointsTx PointsTxLister
	TokenTx  TokenTxLister
	Logger   *slog.Logger
}

// --- POST /v1/wallet/points/transfer ---

// Points and fee arrive as json.Number so "10.5" is rejected instead of
// silently truncated.
type pointsTransferRequest struct {
	RecipientID string      `json:"recipient_id"`
	Points      json.Number `json:"points"`
	Fee         json.Number `json:"fee"`
	Message     string      `json:"message"`
}

type pointsTransferResponse struct {
	Transaction  *models.PointsTransaction `json:"transaction"`
	BalanceAfter int64                     `json:"balance_after"`
}

func (h *WalletHandler) TransferPoints(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.AccountIDFromCtx(r.Context())
	if senderID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req pointsTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}
	points, err := req.Points.Int64()
	if err != nil {
		respondError(w, http.StatusBadRequest, "points must be a whole number")
		return
	}
	var fee int64
	if req.Fee != "" {
		fee, err = req.Fee.Int64()
		if err != nil {
			respondError(w, http.StatusBadRequest, "fee must be a whole number")
			return
		}
	}

	result, err := h.Points.Transfer(r.Context(), senderID, recipientID, points, fee, ledger.TransferOptions{
		Message: req.Message,
		ActorID: &senderID,
		Metadata: &models.TxMetadata{
			IPAddress: clientIP(r),
		},
	})
	if err != nil {
		h.respondTransferError(w, err)
		return
	}
	respond(w, http.StatusOK, "points transferred", pointsTransferResponse{
		Transaction:  result.SenderTx,
		BalanceAfter: result.SenderTx.BalanceAfter,
	})
}

// --- POST /v1/wallet/tokens/transfer ---

// Token amounts arrive as strings; decimal parsing keeps full precision.
type tokenTransferRequest struct {
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	GasFee      string `json:"gas_fee"`
	Message     string `json:"message"`
	Memo        string `json:"memo"`
}

type tokenTransferResponse struct {
	Transaction  *models.TokenTransaction `json:"transaction"`
	BalanceAfter string                   `json:"balance_after"`
}

func (h *WalletHandler) TransferTokens(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.AccountIDFromCtx(r.Context())
	if senderID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	fee, err := parseOptionalDecimal(req.Fee)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fee")
		return
	}
	gasFee, err := parseOptionalDecimal(req.GasFee)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid gas_fee")
		return
	}

	result, err := h.Tokens.Transfer(r.Context(), senderID, recipientID, amount, fee, gasFee, ledger.TransferOptions{
		Message: req.Message,
		Memo:    req.Memo,
		ActorID: &senderID,
		Metadata: &models.TxMetadata{
			IPAddress: clientIP(r),
		},
	})
	if err != nil {
		h.respondTransferError(w, err)
		return
	}
	respond(w, http.StatusOK, "tokens transferred", tokenTransferResponse{
		Transaction:  result.SenderTx,
		BalanceAfter: result.SenderTx.BalanceAfter.StringFixed(models.TokenPrecision),
	})
}

// --- GET /v1/wallet/points/transactions and /v1/wallet/tokens/transactions ---

func (h *WalletHandler) ListPointsTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.PointsTx.ListByAccount(r.Context(), accountID, parseLimit(r))
	if err != nil {
		h.Logger.Error("list points transactions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", list)
}

func (h *WalletHandler) ListTokenTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.TokenTx.ListByAccount(r.Context(), accountID, parseLimit(r))
	if err != nil {
		h.Logger.Error("list token transactions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", list)
}

// --- helpers ---

func (h *WalletHandler) respondTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidFee),
		errors.Is(err, ledger.ErrInvalidGasFee),
		errors.Is(err, ledger.ErrFeeExceedsAmount),
		errors.Is(err, ledger.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrSystemAccountNotFound):
		h.Logger.Error("fee system account missing", "error", err)
		respondError(w, http.StatusInternalServerError, "transfer failed")
	default:
		h.Logger.Error("transfer failed", "error", err)
		respondError(w, http.StatusInternalServerError, "transfer failed")
	}
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
