package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/notify"
	"cpxtbgateway/internal/reconcile"
	"cpxtbgateway/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Payments *services.PaymentService
	Hub      *notify.Hub
}

func NewHandler(payments *services.PaymentService, hub *notify.Hub) *Handler {
	return &Handler{Payments: payments, Hub: hub}
}

type createMerchantRequest struct {
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	ContactEmail  string `json:"contactEmail"`
}

type merchantResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	ContactEmail  string `json:"contactEmail"`
}

type createPaymentRequest struct {
	MerchantID   int64  `json:"merchantId"`
	AmountUSD    string `json:"amountUsd"`
	AmountCPXTB  string `json:"amountCpxtb"`
	ExchangeRate string `json:"exchangeRate"`
	OrderID      string `json:"orderId,omitempty"`
	Description  string `json:"description,omitempty"`
}

type paymentResponse struct {
	Reference           string `json:"reference"`
	Status              string `json:"status"`
	AmountUSD           string `json:"amountUsd"`
	AmountCPXTB         string `json:"amountCpxtb"`
	ReceivedAmount      string `json:"receivedAmount"`
	RequiredAmount      string `json:"requiredAmount"`
	RemainingAmount     string `json:"remainingAmount"`
	SecurityStatus      string `json:"securityStatus"`
	IsSecureTransaction bool   `json:"isSecureTransaction"`
	TransactionHash     string `json:"transactionHash,omitempty"`
	CompletedAt         string `json:"completedAt,omitempty"`
	ExpiresAt           string `json:"expiresAt"`
}

func (h *Handler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req createMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.Payments.CreateMerchant(r.Context(), req.Name, req.WalletAddress, req.ContactEmail)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidWallet):
			writeError(w, http.StatusBadRequest, "wallet address is required")
		case errors.Is(err, services.ErrInvalidContact):
			writeError(w, http.StatusBadRequest, "contact email is required")
		default:
			writeError(w, http.StatusInternalServerError, "create merchant failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, merchantResponse{
		ID:            m.ID,
		Name:          m.Name,
		WalletAddress: m.WalletAddress,
		ContactEmail:  m.ContactEmail,
	})
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	amountUSD, err1 := decimal.NewFromString(req.AmountUSD)
	amountCPXTB, err2 := decimal.NewFromString(req.AmountCPXTB)
	rate, err3 := decimal.NewFromString(req.ExchangeRate)
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	p, err := h.Payments.CreatePaymentRequest(r.Context(), req.MerchantID, amountUSD, amountCPXTB, rate, req.OrderID, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "merchant not found")
		default:
			writeError(w, http.StatusInternalServerError, "create payment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "missing reference")
		return
	}

	p, err := h.Payments.GetPaymentByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get payment failed")
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.Hub.ServeWS(w, r)
}

func toPaymentResponse(p *models.PaymentRequest) paymentResponse {
	received := p.Received()
	resp := paymentResponse{
		Reference:           p.Reference,
		Status:              string(p.Status),
		AmountUSD:           p.AmountUSD.StringFixed(2),
		AmountCPXTB:         p.AmountCPXTB.StringFixed(8),
		ReceivedAmount:      received.String(),
		RequiredAmount:      p.RequiredAmount.String(),
		RemainingAmount:     reconcile.FormatAmount(p.Remaining()),
		SecurityStatus:      string(p.SecurityStatus),
		IsSecureTransaction: p.SecurityStatus == models.SecurityPassed && received.Sign() > 0,
		ExpiresAt:           p.ExpiresAt.Format(time.RFC3339),
	}
	if p.TransactionHash != nil {
		resp.TransactionHash = *p.TransactionHash
	}
	if p.CompletedAt != nil {
		resp.CompletedAt = p.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
