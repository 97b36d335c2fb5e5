package api

import (
	"net/http"

	"github.com/campus/rewards-engine/account"
	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	session, err := h.Auth.Login(r.Context(), req.Utorid, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	token, err := h.Auth.RequestReset(r.Context(), auth.ResetRequest{
		Utorid:   req.Utorid,
		Email:    req.Email,
		ClientIP: clientIP(r),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ResetTokenDTO{ExpiresAt: token.ExpiresAt, ResetToken: token.Token})
}

func (h *Handler) CompleteReset(w http.ResponseWriter, r *http.Request) {
	var req CompleteResetRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Auth.CompleteReset(r.Context(), urlParam(r, "token"), req.Utorid, req.Password); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, token, err := h.Accounts.Register(r.Context(), actorOf(r), account.Registration{
		Utorid: req.Utorid,
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisteredDTO{
		ID:         u.ID,
		Utorid:     u.Utorid,
		Name:       u.Name,
		Email:      u.Email,
		Verified:   u.Verified,
		ExpiresAt:  token.ExpiresAt,
		ResetToken: token.Token,
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := loyalty.UserFilter{
		Name:      q.str("name"),
		Verified:  q.boolean("verified"),
		Activated: q.boolean("activated"),
		Page:      q.page(),
	}
	if s := q.str("role"); s != "" {
		role, ok := loyalty.ParseRole(s)
		if !ok {
			q.fail(loyalty.Invalid("role", "unknown role %q", s))
		}
		f.Role = &role
	}
	if q.err != nil {
		fail(w, r, q.err)
		return
	}

	users, count, err := h.Accounts.List(r.Context(), actorOf(r), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(users, count, toManagedUserDTO))
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.Accounts.Me(r.Context(), actorOf(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	dto := toUserDTO(p.User)
	dto.Promotions = make([]PromotionDTO, len(p.Promotions))
	for i, promo := range p.Promotions {
		dto.Promotions[i] = toPromotionDTO(promo)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetUser shows managers the full record and cashiers the customer view.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	actor := actorOf(r)
	p, err := h.Accounts.Get(r.Context(), actor, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	full := loyalty.Can(actor, loyalty.CapListUsers, loyalty.Scope{})
	writeJSON(w, http.StatusOK, profileDTO(p, full))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req UpdateUserRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Accounts.Update(r.Context(), actorOf(r), id, account.Patch{
		Email:      req.Email,
		Verified:   req.Verified,
		Suspicious: req.Suspicious,
		Role:       req.Role,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	dto := UpdatedUserDTO{ID: u.ID, Utorid: u.Utorid, Name: u.Name}
	if req.Email != nil {
		dto.Email = &u.Email
	}
	if req.Verified != nil {
		dto.Verified = &u.Verified
	}
	if req.Suspicious != nil {
		dto.Suspicious = &u.Suspicious
	}
	if req.Role != nil {
		role := u.Role.String()
		dto.Role = &role
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateSelfRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Accounts.UpdateSelf(r.Context(), actorOf(r), account.SelfPatch{Name: req.Name, Email: req.Email})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), actorOf(r), req.Old, req.New); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *Handler) AuditUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.Ledger.Audit(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(a))
}

// =============================================================================
// SELF-SERVICE POINTS
// =============================================================================

func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	txs, count, err := h.Ledger.History(r.Context(), actorOf(r), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(txs, count, toTransactionDTO))
}

// RequestRedemption opens an unprocessed redemption for the caller.
func (h *Handler) RequestRedemption(w http.ResponseWriter, r *http.Request) {
	var req PointsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Type != string(loyalty.TxRedemption) {
		fail(w, r, loyalty.Invalid("type", "must be redemption"))
		return
	}
	if req.Amount == nil {
		fail(w, r, loyalty.Invalid("amount", "is required"))
		return
	}
	t, err := h.Ledger.RequestRedemption(r.Context(), actorOf(r), ledger.RedemptionRequest{
		Amount: *req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(*t, nil))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req PointsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Type != string(loyalty.TxTransfer) {
		fail(w, r, loyalty.Invalid("type", "must be transfer"))
		return
	}
	if req.Amount == nil {
		fail(w, r, loyalty.Invalid("amount", "is required"))
		return
	}
	res, err := h.Ledger.Transfer(r.Context(), actorOf(r), id, ledger.TransferRequest{
		Amount: *req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(res))
}
