package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// SERVICE - Event lifecycle and membership
// =============================================================================

// Service runs every event operation inside one WithTx so the rule checks
// in rules.go see the same state the write commits against.
type Service struct {
	Store loyalty.TxStore
	Now   func() time.Time
}

func NewService(store loyalty.TxStore) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Privileged reports whether actor sees an event's hidden fields and
// unpublished state.
func Privileged(actor loyalty.Actor, e loyalty.Event) bool {
	return loyalty.Can(actor, loyalty.CapViewHiddenEvent, loyalty.Scope{Organizer: e.IsOrganizer(actor.UserID)})
}

func scopeOf(actor loyalty.Actor, e loyalty.Event) loyalty.Scope {
	return loyalty.Scope{Organizer: e.IsOrganizer(actor.UserID)}
}

// load fetches an event, hiding unpublished ones from unprivileged actors.
func load(ctx context.Context, store loyalty.Store, actor loyalty.Actor, id int64) (*loyalty.Event, error) {
	e, err := store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, loyalty.ErrEventNotFound
	}
	if !e.Published && !Privileged(actor, *e) {
		return nil, loyalty.ErrEventNotFound
	}
	return e, nil
}

func findUser(ctx context.Context, store loyalty.Store, utorid string) (*loyalty.User, error) {
	utorid = strings.TrimSpace(utorid)
	if utorid == "" {
		return nil, loyalty.Invalid("utorid", "is required")
	}
	u, err := store.GetUserByUtorid(ctx, utorid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, loyalty.ErrUserNotFound
	}
	return u, nil
}

// =============================================================================
// CRUD
// =============================================================================

func (s *Service) Create(ctx context.Context, actor loyalty.Actor, d Draft) (*loyalty.Event, error) {
	if err := loyalty.Authorize(actor, loyalty.CapCreateEvent, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	now := s.Now()
	e, err := d.Validate(now)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = now
	if err := s.Store.CreateEvent(ctx, &e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &e, nil
}

func (s *Service) Get(ctx context.Context, actor loyalty.Actor, id int64) (*loyalty.Event, error) {
	return load(ctx, s.Store, actor, id)
}

// List shows unprivileged actors published events only.
func (s *Service) List(ctx context.Context, actor loyalty.Actor, f loyalty.EventFilter) ([]loyalty.Event, int, error) {
	if f.Started != nil && f.Ended != nil {
		return nil, 0, loyalty.Invalid("", "cannot filter on both started and ended")
	}
	if !loyalty.Can(actor, loyalty.CapViewHiddenEvent, loyalty.Scope{}) {
		published := true
		f.Published = &published
	}
	f.Now = s.Now()
	return s.Store.ListEvents(ctx, f)
}

// Update lets managers and organizers edit; only managers may publish.
func (s *Service) Update(ctx context.Context, actor loyalty.Actor, id int64, p Patch) (*loyalty.Event, error) {
	var updated *loyalty.Event
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if err := loyalty.Authorize(actor, loyalty.CapUpdateEvent, scopeOf(actor, *e)).Err(); err != nil {
			return err
		}
		if p.Published != nil {
			if err := loyalty.Authorize(actor, loyalty.CapPublishEvent, loyalty.Scope{}).Err(); err != nil {
				return err
			}
		}
		patch, err := Plan(*e, p, s.Now())
		if err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, id, patch); err != nil {
			return err
		}
		updated, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an unpublished event.
func (s *Service) Delete(ctx context.Context, actor loyalty.Actor, id int64) error {
	if err := loyalty.Authorize(actor, loyalty.CapDeleteEvent, loyalty.Scope{}).Err(); err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if e.Published {
			return loyalty.Invalid("published", "cannot delete a published event")
		}
		return tx.DeleteEvent(ctx, id)
	})
}

// =============================================================================
// ORGANIZERS
// =============================================================================

func (s *Service) AddOrganizer(ctx context.Context, actor loyalty.Actor, id int64, utorid string) (*loyalty.Event, error) {
	if err := loyalty.Authorize(actor, loyalty.CapManageOrganizers, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	var updated *loyalty.Event
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if e.HasEnded(s.Now()) {
			return loyalty.ErrEventEnded
		}
		u, err := findUser(ctx, tx, utorid)
		if err != nil {
			return err
		}
		if err := CheckOrganize(*e, u.ID, s.Now()); err != nil {
			return err
		}
		if err := tx.AddOrganizer(ctx, id, u.ID); err != nil {
			return err
		}
		updated, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) RemoveOrganizer(ctx context.Context, actor loyalty.Actor, id, userID int64) error {
	if err := loyalty.Authorize(actor, loyalty.CapManageOrganizers, loyalty.Scope{}).Err(); err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if !e.IsOrganizer(userID) {
			return loyalty.ErrNotAnOrganizer
		}
		return tx.RemoveOrganizer(ctx, id, userID)
	})
}

// =============================================================================
// GUESTS
// =============================================================================

// AddGuest seats utorid on behalf of a manager or organizer. Unprivileged
// callers see NotFound for unpublished events and Forbidden otherwise.
func (s *Service) AddGuest(ctx context.Context, actor loyalty.Actor, id int64, utorid string) (*loyalty.Event, *loyalty.User, error) {
	var (
		updated *loyalty.Event
		guest   *loyalty.User
	)
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := load(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := loyalty.Authorize(actor, loyalty.CapAddGuest, scopeOf(actor, *e)).Err(); err != nil {
			return err
		}
		now := s.Now()
		if e.HasEnded(now) {
			return loyalty.ErrEventEnded
		}
		guest, err = findUser(ctx, tx, utorid)
		if err != nil {
			return err
		}
		if err := CheckJoin(*e, guest.ID, now); err != nil {
			return err
		}
		if err := tx.AddGuest(ctx, id, guest.ID, now); err != nil {
			return err
		}
		updated, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, guest, nil
}

// RSVP seats the actor. The capacity check and the insert share one commit.
func (s *Service) RSVP(ctx context.Context, actor loyalty.Actor, id int64) (*loyalty.Event, error) {
	if err := loyalty.Authorize(actor, loyalty.CapRSVP, loyalty.Scope{Self: true}).Err(); err != nil {
		return nil, err
	}
	var updated *loyalty.Event
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil || !e.Published {
			return loyalty.ErrEventNotFound
		}
		now := s.Now()
		if err := CheckJoin(*e, actor.UserID, now); err != nil {
			return err
		}
		if err := tx.AddGuest(ctx, id, actor.UserID, now); err != nil {
			return err
		}
		updated, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelRSVP removes the actor from the guest list. Awarded points stay.
func (s *Service) CancelRSVP(ctx context.Context, actor loyalty.Actor, id int64) error {
	if err := loyalty.Authorize(actor, loyalty.CapRSVP, loyalty.Scope{Self: true}).Err(); err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if e.HasEnded(s.Now()) {
			return loyalty.ErrEventEnded
		}
		if !e.Published {
			return loyalty.ErrEventNotFound
		}
		if !e.IsGuest(actor.UserID) {
			return loyalty.ErrNotAGuest
		}
		return tx.RemoveGuest(ctx, id, actor.UserID)
	})
}

func (s *Service) RemoveGuest(ctx context.Context, actor loyalty.Actor, id, userID int64) error {
	if err := loyalty.Authorize(actor, loyalty.CapRemoveGuest, loyalty.Scope{}).Err(); err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return loyalty.ErrEventNotFound
		}
		if !e.IsGuest(userID) {
			return loyalty.ErrNotAGuest
		}
		return tx.RemoveGuest(ctx, id, userID)
	})
}

// IsGuest reports whether the actor holds a seat at a visible event.
func (s *Service) IsGuest(ctx context.Context, actor loyalty.Actor, id int64) (bool, error) {
	e, err := load(ctx, s.Store, actor, id)
	if err != nil {
		return false, err
	}
	return e.IsGuest(actor.UserID), nil
}
