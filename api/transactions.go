package api

import (
	"net/http"

	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction dispatches on the body's type: purchase, adjustment or
// a cashier-opened redemption.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	switch loyalty.TransactionType(req.Type) {
	case loyalty.TxPurchase:
		h.createPurchase(w, r, req)
	case loyalty.TxAdjustment:
		h.createAdjustment(w, r, req)
	case loyalty.TxRedemption:
		h.openRedemption(w, r, req)
	default:
		fail(w, r, loyalty.Invalid("type", "must be purchase, adjustment or redemption"))
	}
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request, req CreateTransactionRequest) {
	if req.Spent == nil {
		fail(w, r, loyalty.Invalid("spent", "is required"))
		return
	}
	receipt, err := h.Ledger.Purchase(r.Context(), actorOf(r), ledger.PurchaseRequest{
		Utorid:       req.Utorid,
		Spent:        *req.Spent,
		PromotionIDs: req.PromotionIDs,
		Remark:       req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseDTO(receipt))
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request, req CreateTransactionRequest) {
	if req.Amount == nil {
		fail(w, r, loyalty.Invalid("amount", "is required"))
		return
	}
	if req.RelatedID == nil {
		fail(w, r, loyalty.Invalid("relatedId", "is required"))
		return
	}
	t, err := h.Ledger.Adjustment(r.Context(), actorOf(r), ledger.AdjustmentRequest{
		Utorid:       req.Utorid,
		Amount:       *req.Amount,
		RelatedID:    *req.RelatedID,
		PromotionIDs: req.PromotionIDs,
		Remark:       req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

func (h *Handler) openRedemption(w http.ResponseWriter, r *http.Request, req CreateTransactionRequest) {
	if req.Amount == nil {
		fail(w, r, loyalty.Invalid("amount", "is required"))
		return
	}
	t, err := h.Ledger.OpenRedemption(r.Context(), actorOf(r), req.Utorid, ledger.RedemptionRequest{
		Amount: *req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(*t, nil))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	txs, count, err := h.Ledger.List(r.Context(), actorOf(r), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(txs, count, toTransactionDTO))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	t, err := h.Ledger.Get(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

func (h *Handler) SetSuspicious(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Suspicious *bool `json:"suspicious"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Suspicious == nil {
		fail(w, r, loyalty.Invalid("suspicious", "is required"))
		return
	}
	t, err := h.Ledger.SetSuspicious(r.Context(), actorOf(r), id, *req.Suspicious)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

// ProcessRedemption accepts only {"processed": true}.
func (h *Handler) ProcessRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Processed *bool `json:"processed"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Processed == nil || !*req.Processed {
		fail(w, r, loyalty.Invalid("processed", "must be true"))
		return
	}
	t, err := h.Ledger.ProcessRedemption(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	processor := currentUser(r).Utorid
	writeJSON(w, http.StatusOK, toRedemptionDTO(*t, &processor))
}

// transactionFilter reads the listing filters shared by /transactions and
// /users/me/transactions. The ledger validates their combination.
func transactionFilter(r *http.Request) (loyalty.TransactionFilter, error) {
	q := newQuery(r)
	f := loyalty.TransactionFilter{
		Name:        q.str("name"),
		CreatedBy:   q.str("createdBy"),
		Suspicious:  q.boolean("suspicious"),
		PromotionID: q.int64("promotionId"),
		RelatedID:   q.int64("relatedId"),
		Amount:      q.int64("amount"),
		Operator:    loyalty.AmountOperator(q.str("operator")),
		Page:        q.page(),
	}
	if s := q.str("type"); s != "" {
		typ := loyalty.TransactionType(s)
		f.Type = &typ
	}
	if f.RelatedID != nil && f.Type == nil {
		q.fail(loyalty.Invalid("relatedId", "requires type"))
	}
	return f, q.err
}
