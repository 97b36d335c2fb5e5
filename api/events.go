package api

import (
	"net/http"
	"strings"

	"github.com/campus/rewards-engine/event"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// EVENT HANDLERS
// =============================================================================

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
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
	if req.Points == nil {
		fail(w, r, loyalty.Invalid("points", "is required"))
		return
	}
	e, err := h.Events.Create(r.Context(), actorOf(r), event.Draft{
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Location:    deref(req.Location),
		StartTime:   *req.StartTime,
		EndTime:     *req.EndTime,
		Capacity:    req.Capacity,
		Points:      *req.Points,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(*e, true))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := loyalty.EventFilter{
		Name:      q.str("name"),
		Location:  q.str("location"),
		Started:   q.boolean("started"),
		Ended:     q.boolean("ended"),
		Published: q.boolean("published"),
		Page:      q.page(),
	}
	if showFull := q.boolean("showFull"); showFull != nil {
		f.ShowFull = *showFull
	}
	includeMe := q.boolean("includeMe")
	if q.err != nil {
		fail(w, r, q.err)
		return
	}

	actor := actorOf(r)
	events, count, err := h.Events.List(r.Context(), actor, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(events, count, func(e loyalty.Event) EventSummaryDTO {
		dto := toEventSummaryDTO(e, event.Privileged(actor, e))
		if includeMe != nil && *includeMe {
			rsvped := e.IsGuest(actor.UserID)
			dto.MeRsvped = &rsvped
		}
		return dto
	}))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	actor := actorOf(r)
	e, err := h.Events.Get(r.Context(), actor, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*e, event.Privileged(actor, *e)))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req EventRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	actor := actorOf(r)
	e, err := h.Events.Update(r.Context(), actor, id, event.Patch{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		Points:      req.Points,
		Published:   req.Published,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*e, event.Privileged(actor, *e)))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Events.Delete(r.Context(), actorOf(r), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ORGANIZERS AND GUESTS
// =============================================================================

func (h *Handler) AddOrganizer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req MemberRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	e, err := h.Events.AddOrganizer(r.Context(), actorOf(r), id, req.Utorid)
	if err != nil {
		fail(w, r, err)
		return
	}
	dto := OrganizersDTO{ID: e.ID, Name: e.Name, Location: e.Location, Organizers: make([]MemberDTO, len(e.Organizers))}
	for i, o := range e.Organizers {
		dto.Organizers[i] = toMemberDTO(o)
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) RemoveOrganizer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Events.RemoveOrganizer(r.Context(), actorOf(r), id, userID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req MemberRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	e, guest, err := h.Events.AddGuest(r.Context(), actorOf(r), id, req.Utorid)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GuestAddedDTO{
		ID:         e.ID,
		Name:       e.Name,
		Location:   e.Location,
		GuestAdded: MemberDTO{ID: guest.ID, Utorid: guest.Utorid, Name: guest.Name},
		NumGuests:  e.ConfirmedGuests(),
	})
}

func (h *Handler) RemoveGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Events.RemoveGuest(r.Context(), actorOf(r), id, userID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRSVP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	ok, err := h.Events.IsGuest(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RSVPDTO{MeRsvped: ok})
}

func (h *Handler) RSVP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	u := currentUser(r)
	e, err := h.Events.RSVP(r.Context(), actorOf(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GuestAddedDTO{
		ID:         e.ID,
		Name:       e.Name,
		Location:   e.Location,
		GuestAdded: MemberDTO{ID: u.ID, Utorid: u.Utorid, Name: u.Name},
		NumGuests:  e.ConfirmedGuests(),
	})
}

func (h *Handler) CancelRSVP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Events.CancelRSVP(r.Context(), actorOf(r), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AWARDS
// =============================================================================

// AwardEvent pays one guest when utorid is given and every guest otherwise.
// The single-guest form answers with one object, the broadcast with a list.
func (h *Handler) AwardEvent(w http.ResponseWriter, r *http.Request) {
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
	if req.Type != string(loyalty.TxEvent) {
		fail(w, r, loyalty.Invalid("type", "must be event"))
		return
	}
	if req.Amount == nil {
		fail(w, r, loyalty.Invalid("amount", "is required"))
		return
	}
	txs, err := h.Ledger.AwardEvent(r.Context(), actorOf(r), id, ledger.AwardRequest{
		Utorid: req.Utorid,
		Amount: *req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Utorid) != "" {
		writeJSON(w, http.StatusCreated, toAwardDTO(txs[0]))
		return
	}
	out := make([]AwardDTO, len(txs))
	for i, t := range txs {
		out[i] = toAwardDTO(t)
	}
	writeJSON(w, http.StatusCreated, out)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
