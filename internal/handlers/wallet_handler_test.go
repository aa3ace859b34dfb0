package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/webxv/backend/internal/ledger"
	"github.com/webxv/backend/internal/middleware"
	"github.com/webxv/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- points ledger mock: records the call, returns a canned result ---

type mockPointsLedger struct {
	gotSender    uuid.UUID
	gotRecipient uuid.UUID
	gotPoints    int64
	gotFee       int64
	gotOpts      ledger.TransferOptions
	called       bool
	err          error
}

func (m *mockPointsLedger) Transfer(_ context.Context, senderID, recipientID uuid.UUID, points, fee int64, opts ledger.TransferOptions) (*ledger.PointsTransferResult, error) {
	m.called = true
	m.gotSender = senderID
	m.gotRecipient = recipientID
	m.gotPoints = points
	m.gotFee = fee
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return &ledger.PointsTransferResult{
		SenderTx: &models.PointsTransaction{
			ID:             uuid.New(),
			AccountID:      senderID,
			CounterpartyID: &recipientID,
			ActionType:     models.ActionTransferOut,
			Points:         -points,
			BalanceAfter:   1000 - points,
		},
	}, nil
}

// --- token ledger mock ---

type mockTokenLedger struct {
	gotAmount decimal.Decimal
	gotFee    decimal.Decimal
	gotGasFee decimal.Decimal
	called    bool
	err       error
}

func (m *mockTokenLedger) Transfer(_ context.Context, senderID, recipientID uuid.UUID, amount, fee, gasFee decimal.Decimal, _ ledger.TransferOptions) (*ledger.TokenTransferResult, error) {
	m.called = true
	m.gotAmount = amount
	m.gotFee = fee
	m.gotGasFee = gasFee
	if m.err != nil {
		return nil, m.err
	}
	return &ledger.TokenTransferResult{
		SenderTx: &models.TokenTransaction{
			ID:             uuid.New(),
			AccountID:      senderID,
			CounterpartyID: &recipientID,
			ActionType:     models.ActionTransferOut,
			Tokens:         amount.Neg(),
			BalanceAfter:   decimal.NewFromInt(5),
		},
	}, nil
}

// --- listers ---

type mockPointsLister struct {
	gotLimit int
	list     []*models.PointsTransaction
}

func (m *mockPointsLister) ListByAccount(_ context.Context, _ uuid.UUID, limit int) ([]*models.PointsTransaction, error) {
	m.gotLimit = limit
	return m.list, nil
}

type mockTokenLister struct {
	list []*models.TokenTransaction
}

func (m *mockTokenLister) ListByAccount(_ context.Context, _ uuid.UUID, _ int) ([]*models.TokenTransaction, error) {
	return m.list, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newWalletHandler() (*WalletHandler, *mockPointsLedger, *mockTokenLedger) {
	pts := &mockPointsLedger{}
	tok := &mockTokenLedger{}
	h := &WalletHandler{
		Points:   pts,
		Tokens:   tok,
		PointsTx: &mockPointsLister{},
		TokenTx:  &mockTokenLister{},
		Logger:   slog.Default(),
	}
	return h, pts, tok
}

// asAccount stamps the request context the way the auth middleware does.
func asAccount(r *http.Request, accountID uuid.UUID, role string) *http.Request {
	return r.WithContext(middleware.WithAccount(r.Context(), accountID, role))
}

type envelopeBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var env envelopeBody
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

// =====================================================================
// POST /v1/wallet/points/transfer
// =====================================================================

func TestTransferPoints_OK(t *testing.T) {
	h, pts, _ := newWalletHandler()
	sender := uuid.New()
	recipient := uuid.New()

	body := fmt.Sprintf(`{"recipient_id":%q,"points":500,"fee":50,"message":"thanks"}`, recipient)
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/points/transfer", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req = asAccount(req, sender, models.RoleCustomer)
	rec := httptest.NewRecorder()

	h.TransferPoints(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success=true")
	}
	if pts.gotSender != sender || pts.gotRecipient != recipient {
		t.Error("sender/recipient not forwarded to the ledger")
	}
	if pts.gotPoints != 500 || pts.gotFee != 50 {
		t.Errorf("points/fee forwarded as %d/%d, want 500/50", pts.gotPoints, pts.gotFee)
	}
	if pts.gotOpts.Message != "thanks" {
		t.Errorf("message forwarded as %q", pts.gotOpts.Message)
	}
	if pts.gotOpts.Metadata == nil || pts.gotOpts.Metadata.IPAddress != "203.0.113.9" {
		t.Error("client IP not captured in metadata")
	}

	var resp pointsTransferResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.BalanceAfter != 500 {
		t.Errorf("balance_after = %d, want 500", resp.BalanceAfter)
	}
}

func TestTransferPoints_FractionalRejected(t *testing.T) {
	h, pts, _ := newWalletHandler()

	body := fmt.Sprintf(`{"recipient_id":%q,"points":10.5}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/points/transfer", strings.NewReader(body))
	req = asAccount(req, uuid.New(), models.RoleCustomer)
	rec := httptest.NewRecorder()

	h.TransferPoints(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if pts.called {
		t.Error("ledger must not be called for a fractional points value")
	}
}

func TestTransferPoints_LedgerErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"insufficient balance", ledger.ErrInsufficientBalance, http.StatusBadRequest},
		{"self transfer", ledger.ErrSelfTransfer, http.StatusBadRequest},
		{"fee exceeds amount", ledger.ErrFeeExceedsAmount, http.StatusBadRequest},
		{"unknown recipient", ledger.ErrAccountNotFound, http.StatusNotFound},
		{"system account missing", ledger.ErrSystemAccountNotFound, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, pts, _ := newWalletHandler()
			pts.err = tc.err

			body := fmt.Sprintf(`{"recipient_id":%q,"points":100}`, uuid.New())
			req := httptest.NewRequest(http.MethodPost, "/v1/wallet/points/transfer", strings.NewReader(body))
			req = asAccount(req, uuid.New(), models.RoleCustomer)
			rec := httptest.NewRecorder()

			h.TransferPoints(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if env := decodeEnvelope(t, rec); env.Success {
				t.Error("expected success=false")
			}
		})
	}
}

func TestTransferPoints_Unauthenticated(t *testing.T) {
	h, pts, _ := newWalletHandler()

	body := fmt.Sprintf(`{"recipient_id":%q,"points":100}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/points/transfer", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.TransferPoints(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if pts.called {
		t.Error("ledger must not be called without an authed account")
	}
}

// =====================================================================
// POST /v1/wallet/tokens/transfer
// =====================================================================

func TestTransferTokens_OK(t *testing.T) {
	h, _, tok := newWalletHandler()
	recipient := uuid.New()

	body := fmt.Sprintf(`{"recipient_id":%q,"amount":"12.5","fee":"0.5","gas_fee":"0.1","memo":"tx-9"}`, recipient)
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/tokens/transfer", strings.NewReader(body))
	req = asAccount(req, uuid.New(), models.RoleCustomer)
	rec := httptest.NewRecorder()

	h.TransferTokens(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !tok.gotAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("amount forwarded as %s, want 12.5", tok.gotAmount)
	}
	if !tok.gotFee.Equal(decimal.RequireFromString("0.5")) || !tok.gotGasFee.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("fee/gas forwarded as %s/%s, want 0.5/0.1", tok.gotFee, tok.gotGasFee)
	}

	env := decodeEnvelope(t, rec)
	var resp tokenTransferResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.BalanceAfter != "5.00000000" {
		t.Errorf("balance_after = %q, want fixed 8-digit string", resp.BalanceAfter)
	}
}

func TestTransferTokens_OmittedFees(t *testing.T) {
	h, _, tok := newWalletHandler()

	body := fmt.Sprintf(`{"recipient_id":%q,"amount":"3"}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/tokens/transfer", strings.NewReader(body))
	req = asAccount(req, uuid.New(), models.RoleCustomer)
	rec := httptest.NewRecorder()

	h.TransferTokens(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !tok.gotFee.IsZero() || !tok.gotGasFee.IsZero() {
		t.Error("omitted fee and gas_fee must default to zero")
	}
}

func TestTransferTokens_BadAmount(t *testing.T) {
	h, _, tok := newWalletHandler()

	for _, amount := range []string{"", "abc", "1.2.3"} {
		body := fmt.Sprintf(`{"recipient_id":%q,"amount":%q}`, uuid.New(), amount)
		req := httptest.NewRequest(http.MethodPost, "/v1/wallet/tokens/transfer", strings.NewReader(body))
		req = asAccount(req, uuid.New(), models.RoleCustomer)
		rec := httptest.NewRecorder()

		h.TransferTokens(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("amount %q: expected 400, got %d", amount, rec.Code)
		}
	}
	if tok.called {
		t.Error("ledger must not be called for unparseable amounts")
	}
}

// =====================================================================
// GET /v1/wallet/points/transactions
// =====================================================================

func TestListPointsTransactions(t *testing.T) {
	lister := &mockPointsLister{list: []*models.PointsTransaction{
		{ID: uuid.New(), Points: -100},
		{ID: uuid.New(), Points: 250},
	}}
	h := &WalletHandler{PointsTx: lister, Logger: slog.Default()}

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet/points/transactions?limit=25", nil)
	req = asAccount(req, uuid.New(), models.RoleCustomer)
	rec := httptest.NewRecorder()

	h.ListPointsTransactions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if lister.gotLimit != 25 {
		t.Errorf("limit forwarded as %d, want 25", lister.gotLimit)
	}
	env := decodeEnvelope(t, rec)
	var list []*models.PointsTransaction
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("got %d transactions, want 2", len(list))
	}
}
