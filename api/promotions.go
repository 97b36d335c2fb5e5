package api

import (
	"net/http"

	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/promotion"
)

// =============================================================================
// PROMOTION HANDLERS
// =============================================================================

func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req PromotionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.StartTime == nil {
		fail(w, r, loyalty.Invalid("startTime", "is required"))
		return
	}
	if req.EndTime == nil {
		fail(w, r, loyalty.Invalid("endTime", "is required"))
		return
	}
	p, err := h.Promotions.Create(r.Context(), actorOf(r), promotion.Draft{
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Type:        deref(req.Type),
		StartTime:   *req.StartTime,
		EndTime:     *req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPromotionDTO(*p))
}

func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := loyalty.PromotionFilter{
		Name:    q.str("name"),
		Started: q.boolean("started"),
		Ended:   q.boolean("ended"),
		Page:    q.page(),
	}
	if s := q.str("type"); s != "" {
		typ, ok := loyalty.ParsePromotionType(s)
		if !ok {
			q.fail(loyalty.Invalid("type", "must be automatic or onetime"))
		}
		f.Type = &typ
	}
	if q.err != nil {
		fail(w, r, q.err)
		return
	}

	promos, count, err := h.Promotions.List(r.Context(), actorOf(r), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(promos, count, toPromotionDTO))
}

func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Promotions.Get(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPromotionDTO(*p))
}

func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req PromotionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	patch := loyalty.PromotionPatch{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	}
	if req.Type != nil {
		typ, ok := loyalty.ParsePromotionType(*req.Type)
		if !ok {
			fail(w, r, loyalty.Invalid("type", "must be automatic or onetime"))
			return
		}
		patch.Type = &typ
	}
	p, err := h.Promotions.Update(r.Context(), actorOf(r), id, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPromotionDTO(*p))
}

func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Promotions.Delete(r.Context(), actorOf(r), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
