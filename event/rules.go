/*
rules.go - Capacity, budget and edit rules for events

PURPOSE:
  Pure checks on a loaded loyalty.Event. The service and the ledger call
  them inside the same WithTx that performs the write, so a check never
  runs against a stale count.

TWO CEILINGS:
  Capacity: confirmed guests never exceed Capacity (nil = unlimited).
  Budget:   PointsRemain never goes below zero. PointsRemain + PointsAwarded
            is the total budget; awards move points from one to the other.

TIME WINDOWS:
  Before start:  every field may change.
  After start:   only EndTime may change, and only until it passes.
  After end:     no guests or organizers may be added.

SEE ALSO:
  - service.go:     applies these rules
  - ledger/award.go: CheckAward before crediting guests
*/
package event

import (
	"math"
	"strings"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// MEMBERSHIP
// =============================================================================

// CheckJoin decides whether userID may become a guest of e at now.
func CheckJoin(e loyalty.Event, userID int64, now time.Time) error {
	if e.IsOrganizer(userID) {
		return loyalty.ErrAlreadyOrganizer
	}
	if e.HasEnded(now) {
		return loyalty.ErrEventEnded
	}
	if e.IsGuest(userID) {
		return loyalty.ErrAlreadyGuest
	}
	if e.IsFull() {
		return loyalty.ErrEventFull
	}
	return nil
}

// CheckOrganize decides whether userID may become an organizer of e.
// Re-adding an existing organizer is not an error.
func CheckOrganize(e loyalty.Event, userID int64, now time.Time) error {
	if e.HasEnded(now) {
		return loyalty.ErrEventEnded
	}
	if e.IsGuest(userID) {
		return loyalty.ErrAlreadyGuest
	}
	return nil
}

// =============================================================================
// BUDGET
// =============================================================================

// CheckAward validates awarding amount points to each of recipients guests.
func CheckAward(e loyalty.Event, amount int64, recipients int) error {
	if amount <= 0 {
		return loyalty.Invalid("amount", "must be a positive integer")
	}
	if recipients == 0 {
		return loyalty.Invalid("utorid", "event has no guests to award")
	}
	n := int64(recipients)
	if amount > e.PointsRemain/n {
		requested := int64(math.MaxInt64)
		if amount <= math.MaxInt64/n {
			requested = amount * n
		}
		return &loyalty.InsufficientBudgetError{EventID: e.ID, Remaining: e.PointsRemain, Requested: requested}
	}
	return nil
}

// =============================================================================
// CREATE
// =============================================================================

// Draft is an event to create. Points is the total budget.
type Draft struct {
	Name        string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    *int
	Points      int64
}

// Validate checks a draft at now and returns the unpublished event.
func (d Draft) Validate(now time.Time) (loyalty.Event, error) {
	e := loyalty.Event{
		Name:         strings.TrimSpace(d.Name),
		Description:  strings.TrimSpace(d.Description),
		Location:     strings.TrimSpace(d.Location),
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		Capacity:     d.Capacity,
		PointsRemain: d.Points,
	}
	switch {
	case e.Name == "":
		return e, loyalty.Invalid("name", "is required")
	case e.Description == "":
		return e, loyalty.Invalid("description", "is required")
	case e.Location == "":
		return e, loyalty.Invalid("location", "is required")
	case d.Points <= 0:
		return e, loyalty.Invalid("points", "must be a positive integer")
	case d.Capacity != nil && *d.Capacity <= 0:
		return e, loyalty.Invalid("capacity", "must be positive")
	case !d.StartTime.After(now):
		return e, loyalty.Invalid("startTime", "must be in the future")
	case !d.EndTime.After(d.StartTime):
		return e, loyalty.Invalid("endTime", "must be after startTime")
	}
	return e, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Patch is a requested event edit. Points is the new total budget.
type Patch struct {
	Name        *string
	Description *string
	Location    *string
	StartTime   *time.Time
	EndTime     *time.Time
	Capacity    *int
	Points      *int64
	Published   *bool
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Location == nil &&
		p.StartTime == nil && p.EndTime == nil && p.Capacity == nil &&
		p.Points == nil && p.Published == nil
}

// Plan validates p against e at now and translates it into a store patch.
func Plan(e loyalty.Event, p Patch, now time.Time) (loyalty.EventPatch, error) {
	var out loyalty.EventPatch
	if p.Empty() {
		return out, loyalty.Invalid("", "no fields to update")
	}
	started := e.HasStarted(now)
	frozen := func(field string) error {
		return loyalty.Invalid(field, "cannot change after the event has started")
	}

	for _, f := range []struct {
		name string
		in   *string
		out  **string
	}{
		{"name", p.Name, &out.Name},
		{"description", p.Description, &out.Description},
		{"location", p.Location, &out.Location},
	} {
		if f.in == nil {
			continue
		}
		if started {
			return out, frozen(f.name)
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			return out, loyalty.Invalid(f.name, "must not be empty")
		}
		*f.out = &v
	}

	start, end := e.StartTime, e.EndTime
	if p.StartTime != nil {
		if started {
			return out, frozen("startTime")
		}
		if !p.StartTime.After(now) {
			return out, loyalty.Invalid("startTime", "must be in the future")
		}
		start = *p.StartTime
		out.StartTime = p.StartTime
	}
	if p.EndTime != nil {
		if e.HasEnded(now) {
			return out, loyalty.Invalid("endTime", "cannot change after the event has ended")
		}
		if !p.EndTime.After(now) {
			return out, loyalty.Invalid("endTime", "must be in the future")
		}
		end = *p.EndTime
		out.EndTime = p.EndTime
	}
	if (p.StartTime != nil || p.EndTime != nil) && !end.After(start) {
		return out, loyalty.Invalid("endTime", "must be after startTime")
	}

	if p.Capacity != nil {
		if started {
			return out, frozen("capacity")
		}
		if *p.Capacity <= 0 {
			return out, loyalty.Invalid("capacity", "must be positive")
		}
		if *p.Capacity < e.ConfirmedGuests() {
			return out, loyalty.Invalid("capacity", "is below the %d confirmed guests", e.ConfirmedGuests())
		}
		out.Capacity = p.Capacity
	}

	if p.Points != nil {
		if started {
			return out, frozen("points")
		}
		if *p.Points < 0 {
			return out, loyalty.Invalid("points", "must not be negative")
		}
		remain := *p.Points - e.PointsAwarded
		if remain < 0 {
			return out, loyalty.Invalid("points", "is below the %d points already awarded", e.PointsAwarded)
		}
		out.PointsRemain = &remain
	}

	if p.Published != nil {
		if !*p.Published {
			return out, loyalty.ErrInvalidTransition
		}
		out.Published = p.Published
	}
	return out, nil
}
