// Package store provides an in-memory loyalty.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds every aggregate behind one lock. WithTx keeps the lock for
// the whole callback and restores a snapshot if the callback fails.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

type usageKey struct {
	UserID      int64
	PromotionID int64
}

type state struct {
	users      map[int64]loyalty.User
	txs        []loyalty.Transaction // ordered by ID
	usages     map[usageKey]bool
	events     map[int64]loyalty.Event
	promotions map[int64]loyalty.Promotion
	resets     map[string]loyalty.ResetToken

	nextUser, nextTx, nextEvent, nextPromotion int64
}

func NewMemory() *Memory {
	return &Memory{s: &state{
		users:      make(map[int64]loyalty.User),
		usages:     make(map[usageKey]bool),
		events:     make(map[int64]loyalty.Event),
		promotions: make(map[int64]loyalty.Promotion),
		resets:     make(map[string]loyalty.ResetToken),
	}}
}

var _ loyalty.TxStore = (*Memory)(nil)

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&view{s: m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Memory) read() *view {
	return &view{s: m.s}
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[int64]loyalty.User, len(s.users)),
		txs:           append([]loyalty.Transaction(nil), s.txs...),
		usages:        make(map[usageKey]bool, len(s.usages)),
		events:        make(map[int64]loyalty.Event, len(s.events)),
		promotions:    make(map[int64]loyalty.Promotion, len(s.promotions)),
		resets:        make(map[string]loyalty.ResetToken, len(s.resets)),
		nextUser:      s.nextUser,
		nextTx:        s.nextTx,
		nextEvent:     s.nextEvent,
		nextPromotion: s.nextPromotion,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usages {
		c.usages[k] = v
	}
	for k, v := range s.events {
		v.Organizers = append([]loyalty.Member(nil), v.Organizers...)
		v.Guests = append([]loyalty.Guest(nil), v.Guests...)
		c.events[k] = v
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	for k, v := range s.resets {
		c.resets[k] = v
	}
	return c
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) CreateUser(ctx context.Context, u *loyalty.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*loyalty.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetUser(ctx, id)
}

func (m *Memory) GetUserByUtorid(ctx context.Context, utorid string) (*loyalty.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetUserByUtorid(ctx, utorid)
}

func (m *Memory) ListUsers(ctx context.Context, f loyalty.UserFilter) ([]loyalty.User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListUsers(ctx, f)
}

func (m *Memory) UpdateUser(ctx context.Context, id int64, p loyalty.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateUser(ctx, id, p)
}

func (m *Memory) AddPoints(ctx context.Context, userID int64, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AddPoints(ctx, userID, delta)
}

func (m *Memory) AppendTransaction(ctx context.Context, tx *loyalty.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AppendTransaction(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, id int64) (*loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, f loyalty.TransactionFilter) ([]loyalty.Transaction, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListTransactions(ctx, f)
}

func (m *Memory) UserTransactions(ctx context.Context, userID int64) ([]loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().UserTransactions(ctx, userID)
}

func (m *Memory) SetSuspicious(ctx context.Context, id int64, suspicious bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SetSuspicious(ctx, id, suspicious)
}

func (m *Memory) MarkProcessed(ctx context.Context, id int64, processedBy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().MarkProcessed(ctx, id, processedBy)
}

func (m *Memory) HasUsedPromotion(ctx context.Context, userID, promotionID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().HasUsedPromotion(ctx, userID, promotionID)
}

func (m *Memory) CreateEvent(ctx context.Context, e *loyalty.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateEvent(ctx, e)
}

func (m *Memory) GetEvent(ctx context.Context, id int64) (*loyalty.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetEvent(ctx, id)
}

func (m *Memory) ListEvents(ctx context.Context, f loyalty.EventFilter) ([]loyalty.Event, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListEvents(ctx, f)
}

func (m *Memory) UpdateEvent(ctx context.Context, id int64, p loyalty.EventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateEvent(ctx, id, p)
}

func (m *Memory) DeleteEvent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeleteEvent(ctx, id)
}

func (m *Memory) AddGuest(ctx context.Context, eventID, userID int64, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AddGuest(ctx, eventID, userID, confirmedAt)
}

func (m *Memory) RemoveGuest(ctx context.Context, eventID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().RemoveGuest(ctx, eventID, userID)
}

func (m *Memory) AddOrganizer(ctx context.Context, eventID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AddOrganizer(ctx, eventID, userID)
}

func (m *Memory) RemoveOrganizer(ctx context.Context, eventID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().RemoveOrganizer(ctx, eventID, userID)
}

func (m *Memory) SpendEventBudget(ctx context.Context, eventID int64, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SpendEventBudget(ctx, eventID, amount)
}

func (m *Memory) CreatePromotion(ctx context.Context, p *loyalty.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreatePromotion(ctx, p)
}

func (m *Memory) GetPromotion(ctx context.Context, id int64) (*loyalty.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetPromotion(ctx, id)
}

func (m *Memory) ListPromotions(ctx context.Context, f loyalty.PromotionFilter) ([]loyalty.Promotion, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListPromotions(ctx, f)
}

func (m *Memory) ActivePromotions(ctx context.Context, typ loyalty.PromotionType, now time.Time) ([]loyalty.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ActivePromotions(ctx, typ, now)
}

func (m *Memory) UpdatePromotion(ctx context.Context, id int64, p loyalty.PromotionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdatePromotion(ctx, id, p)
}

func (m *Memory) DeletePromotion(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeletePromotion(ctx, id)
}

func (m *Memory) IssueResetToken(ctx context.Context, t *loyalty.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().IssueResetToken(ctx, t)
}

func (m *Memory) GetResetToken(ctx context.Context, token string) (*loyalty.ResetToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetResetToken(ctx, token)
}

func (m *Memory) ConsumeResetToken(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ConsumeResetToken(ctx, token, at)
}

// =============================================================================
// VIEW - Unlocked operations; the caller holds the lock
// =============================================================================

type view struct {
	s *state
}

// ---- users ----

func (v *view) CreateUser(_ context.Context, u *loyalty.User) error {
	for _, existing := range v.s.users {
		if strings.EqualFold(existing.Utorid, u.Utorid) || strings.EqualFold(existing.Email, u.Email) {
			return loyalty.ErrDuplicateUser
		}
	}
	v.s.nextUser++
	u.ID = v.s.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	v.s.users[u.ID] = *u
	return nil
}

func (v *view) GetUser(_ context.Context, id int64) (*loyalty.User, error) {
	u, ok := v.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v *view) GetUserByUtorid(_ context.Context, utorid string) (*loyalty.User, error) {
	for _, u := range v.s.users {
		if strings.EqualFold(u.Utorid, utorid) || strings.EqualFold(u.Email, utorid) {
			return &u, nil
		}
	}
	return nil, nil
}

func (v *view) ListUsers(_ context.Context, f loyalty.UserFilter) ([]loyalty.User, int, error) {
	var matched []loyalty.User
	for _, u := range v.s.users {
		if f.Name != "" && !containsFold(u.Utorid, f.Name) && !containsFold(u.Name, f.Name) {
			continue
		}
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.Verified != nil && u.Verified != *f.Verified {
			continue
		}
		if f.Activated != nil && (u.LastLogin != nil) != *f.Activated {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, f.Page), len(matched), nil
}

func (v *view) UpdateUser(_ context.Context, id int64, p loyalty.UserPatch) error {
	u, ok := v.s.users[id]
	if !ok {
		return loyalty.ErrUserNotFound
	}
	if p.Email != nil {
		for _, other := range v.s.users {
			if other.ID != id && strings.EqualFold(other.Email, *p.Email) {
				return loyalty.ErrDuplicateUser
			}
		}
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Verified != nil {
		u.Verified = *p.Verified
	}
	if p.Suspicious != nil {
		u.Suspicious = *p.Suspicious
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		u.LastLogin = &t
	}
	v.s.users[id] = u
	return nil
}

func (v *view) AddPoints(_ context.Context, userID int64, delta int64) error {
	u, ok := v.s.users[userID]
	if !ok {
		return loyalty.ErrUserNotFound
	}
	points, err := loyalty.AddPoints(u.Points, delta)
	if err != nil {
		return err
	}
	u.Points = points
	v.s.users[userID] = u
	return nil
}

// ---- transactions ----

func (v *view) AppendTransaction(_ context.Context, tx *loyalty.Transaction) error {
	v.s.nextTx++
	tx.ID = v.s.nextTx
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	row := *tx
	row.Utorid, row.CreatedByUtorid = "", ""
	if tx.Purchase != nil {
		tx.Purchase.TransactionID = tx.ID
		detail := *tx.Purchase
		detail.AppliedPromotionIDs = append([]int64(nil), tx.Purchase.AppliedPromotionIDs...)
		row.Purchase = &detail
		for _, pid := range detail.AppliedPromotionIDs {
			v.s.usages[usageKey{UserID: tx.UserID, PromotionID: pid}] = true
		}
	}
	v.s.txs = append(v.s.txs, row)
	return nil
}

func (v *view) index(id int64) int {
	i := sort.Search(len(v.s.txs), func(i int) bool { return v.s.txs[i].ID >= id })
	if i < len(v.s.txs) && v.s.txs[i].ID == id {
		return i
	}
	return -1
}

func (v *view) hydrate(tx loyalty.Transaction) loyalty.Transaction {
	tx.Utorid = v.s.users[tx.UserID].Utorid
	tx.CreatedByUtorid = v.s.users[tx.CreatedByID].Utorid
	if tx.Purchase != nil {
		detail := *tx.Purchase
		detail.AppliedPromotionIDs = append([]int64{}, tx.Purchase.AppliedPromotionIDs...)
		tx.Purchase = &detail
	}
	return tx
}

func (v *view) GetTransaction(_ context.Context, id int64) (*loyalty.Transaction, error) {
	i := v.index(id)
	if i < 0 {
		return nil, nil
	}
	tx := v.hydrate(v.s.txs[i])
	return &tx, nil
}

func (v *view) ListTransactions(_ context.Context, f loyalty.TransactionFilter) ([]loyalty.Transaction, int, error) {
	var matched []loyalty.Transaction
	for i := len(v.s.txs) - 1; i >= 0; i-- {
		tx := v.hydrate(v.s.txs[i])
		if v.matchTransaction(tx, f) {
			matched = append(matched, tx)
		}
	}
	return paginate(matched, f.Page), len(matched), nil
}

func (v *view) matchTransaction(tx loyalty.Transaction, f loyalty.TransactionFilter) bool {
	if f.UserID != nil && tx.UserID != *f.UserID {
		return false
	}
	if f.Name != "" {
		owner := v.s.users[tx.UserID]
		if !containsFold(owner.Utorid, f.Name) && !containsFold(owner.Name, f.Name) {
			return false
		}
	}
	if f.CreatedBy != "" {
		creator := v.s.users[tx.CreatedByID]
		if !containsFold(creator.Utorid, f.CreatedBy) && !containsFold(creator.Name, f.CreatedBy) {
			return false
		}
	}
	if f.Suspicious != nil && tx.Suspicious != *f.Suspicious {
		return false
	}
	if f.Type != nil && tx.Type != *f.Type {
		return false
	}
	if f.RelatedID != nil {
		rel := tx.RelatedID()
		if rel == nil || *rel != *f.RelatedID {
			return false
		}
	}
	if f.PromotionID != nil && !containsID(tx.PromotionIDs(), *f.PromotionID) {
		return false
	}
	if f.Amount != nil {
		switch f.Operator {
		case loyalty.AmountGTE:
			if tx.Amount < *f.Amount {
				return false
			}
		case loyalty.AmountLTE:
			if tx.Amount > *f.Amount {
				return false
			}
		default:
			if tx.Amount != *f.Amount {
				return false
			}
		}
	}
	return true
}

func (v *view) UserTransactions(_ context.Context, userID int64) ([]loyalty.Transaction, error) {
	var out []loyalty.Transaction
	for _, tx := range v.s.txs {
		if tx.UserID == userID {
			out = append(out, v.hydrate(tx))
		}
	}
	return out, nil
}

func (v *view) SetSuspicious(_ context.Context, id int64, suspicious bool) error {
	i := v.index(id)
	if i < 0 {
		return loyalty.ErrTransactionNotFound
	}
	v.s.txs[i].Suspicious = suspicious
	return nil
}

func (v *view) MarkProcessed(_ context.Context, id int64, processedBy int64) error {
	i := v.index(id)
	if i < 0 {
		return loyalty.ErrTransactionNotFound
	}
	if v.s.txs[i].Processed {
		return loyalty.ErrAlreadyProcessed
	}
	v.s.txs[i].Processed = true
	v.s.txs[i].ProcessedByID = &processedBy
	return nil
}

func (v *view) HasUsedPromotion(_ context.Context, userID, promotionID int64) (bool, error) {
	return v.s.usages[usageKey{UserID: userID, PromotionID: promotionID}], nil
}

// ---- events ----

func (v *view) CreateEvent(_ context.Context, e *loyalty.Event) error {
	v.s.nextEvent++
	e.ID = v.s.nextEvent
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	row := *e
	row.Organizers, row.Guests = nil, nil
	v.s.events[e.ID] = row
	return nil
}

func (v *view) hydrateEvent(e loyalty.Event) loyalty.Event {
	orgs := make([]loyalty.Member, len(e.Organizers))
	for i, o := range e.Organizers {
		orgs[i] = v.member(o.UserID)
	}
	guests := make([]loyalty.Guest, len(e.Guests))
	for i, g := range e.Guests {
		g.Member = v.member(g.UserID)
		guests[i] = g
	}
	e.Organizers, e.Guests = orgs, guests
	return e
}

func (v *view) member(userID int64) loyalty.Member {
	u := v.s.users[userID]
	return loyalty.Member{UserID: userID, Utorid: u.Utorid, Name: u.Name}
}

func (v *view) GetEvent(_ context.Context, id int64) (*loyalty.Event, error) {
	e, ok := v.s.events[id]
	if !ok {
		return nil, nil
	}
	e = v.hydrateEvent(e)
	return &e, nil
}

func (v *view) ListEvents(_ context.Context, f loyalty.EventFilter) ([]loyalty.Event, int, error) {
	var matched []loyalty.Event
	for _, e := range v.s.events {
		if f.Name != "" && !containsFold(e.Name, f.Name) {
			continue
		}
		if f.Location != "" && !containsFold(e.Location, f.Location) {
			continue
		}
		if f.Started != nil && e.HasStarted(f.Now) != *f.Started {
			continue
		}
		if f.Ended != nil && e.HasEnded(f.Now) != *f.Ended {
			continue
		}
		if f.Published != nil && e.Published != *f.Published {
			continue
		}
		if !f.ShowFull && e.IsFull() {
			continue
		}
		matched = append(matched, v.hydrateEvent(e))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].StartTime.Before(matched[j].StartTime)
	})
	return paginate(matched, f.Page), len(matched), nil
}

func (v *view) UpdateEvent(_ context.Context, id int64, p loyalty.EventPatch) error {
	e, ok := v.s.events[id]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.Capacity != nil {
		c := *p.Capacity
		e.Capacity = &c
	}
	if p.PointsRemain != nil {
		e.PointsRemain = *p.PointsRemain
	}
	if p.Published != nil {
		e.Published = *p.Published
	}
	v.s.events[id] = e
	return nil
}

func (v *view) DeleteEvent(_ context.Context, id int64) error {
	if _, ok := v.s.events[id]; !ok {
		return loyalty.ErrEventNotFound
	}
	delete(v.s.events, id)
	return nil
}

func (v *view) AddGuest(_ context.Context, eventID, userID int64, confirmedAt time.Time) error {
	e, ok := v.s.events[eventID]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	if e.IsGuest(userID) {
		return loyalty.ErrAlreadyGuest
	}
	at := confirmedAt
	e.Guests = append(e.Guests, loyalty.Guest{
		Member:      loyalty.Member{UserID: userID},
		Confirmed:   true,
		ConfirmedAt: &at,
	})
	v.s.events[eventID] = e
	return nil
}

func (v *view) RemoveGuest(_ context.Context, eventID, userID int64) error {
	e, ok := v.s.events[eventID]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	for i, g := range e.Guests {
		if g.UserID == userID {
			e.Guests = append(e.Guests[:i:i], e.Guests[i+1:]...)
			v.s.events[eventID] = e
			return nil
		}
	}
	return loyalty.ErrNotAGuest
}

func (v *view) AddOrganizer(_ context.Context, eventID, userID int64) error {
	e, ok := v.s.events[eventID]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	if e.IsOrganizer(userID) {
		return nil
	}
	e.Organizers = append(e.Organizers, loyalty.Member{UserID: userID})
	v.s.events[eventID] = e
	return nil
}

func (v *view) RemoveOrganizer(_ context.Context, eventID, userID int64) error {
	e, ok := v.s.events[eventID]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	for i, o := range e.Organizers {
		if o.UserID == userID {
			e.Organizers = append(e.Organizers[:i:i], e.Organizers[i+1:]...)
			v.s.events[eventID] = e
			return nil
		}
	}
	return loyalty.ErrNotAnOrganizer
}

func (v *view) SpendEventBudget(_ context.Context, eventID int64, amount int64) error {
	if amount <= 0 {
		return loyalty.Invalid("amount", "must be a positive integer")
	}
	e, ok := v.s.events[eventID]
	if !ok {
		return loyalty.ErrEventNotFound
	}
	if e.PointsRemain < amount {
		return &loyalty.InsufficientBudgetError{EventID: eventID, Remaining: e.PointsRemain, Requested: amount}
	}
	e.PointsRemain -= amount
	e.PointsAwarded += amount
	v.s.events[eventID] = e
	return nil
}

// ---- promotions ----

func (v *view) CreatePromotion(_ context.Context, p *loyalty.Promotion) error {
	v.s.nextPromotion++
	p.ID = v.s.nextPromotion
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	v.s.promotions[p.ID] = *p
	return nil
}

func (v *view) GetPromotion(_ context.Context, id int64) (*loyalty.Promotion, error) {
	p, ok := v.s.promotions[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) ListPromotions(_ context.Context, f loyalty.PromotionFilter) ([]loyalty.Promotion, int, error) {
	var matched []loyalty.Promotion
	for _, p := range v.s.promotions {
		if f.ActiveOnly && !p.ActiveAt(f.Now) {
			continue
		}
		if f.Name != "" && !containsFold(p.Name, f.Name) {
			continue
		}
		if f.Type != nil && p.Type != *f.Type {
			continue
		}
		if f.Started != nil && !p.StartTime.After(f.Now) != *f.Started {
			continue
		}
		if f.Ended != nil && !p.EndTime.After(f.Now) != *f.Ended {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, f.Page), len(matched), nil
}

func (v *view) ActivePromotions(_ context.Context, typ loyalty.PromotionType, now time.Time) ([]loyalty.Promotion, error) {
	var out []loyalty.Promotion
	for _, p := range v.s.promotions {
		if p.Type == typ && p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) UpdatePromotion(_ context.Context, id int64, patch loyalty.PromotionPatch) error {
	p, ok := v.s.promotions[id]
	if !ok {
		return loyalty.ErrPromotionNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Type != nil {
		p.Type = *patch.Type
	}
	if patch.StartTime != nil {
		p.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		p.EndTime = *patch.EndTime
	}
	if patch.MinSpending != nil {
		d := *patch.MinSpending
		p.MinSpending = &d
	}
	if patch.Rate != nil {
		d := *patch.Rate
		p.Rate = &d
	}
	if patch.Points != nil {
		n := *patch.Points
		p.Points = &n
	}
	v.s.promotions[id] = p
	return nil
}

func (v *view) DeletePromotion(_ context.Context, id int64) error {
	if _, ok := v.s.promotions[id]; !ok {
		return loyalty.ErrPromotionNotFound
	}
	delete(v.s.promotions, id)
	return nil
}

// ---- reset tokens ----

func (v *view) IssueResetToken(_ context.Context, t *loyalty.ResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	for k, old := range v.s.resets {
		if old.UserID == t.UserID && old.ConsumedAt == nil {
			at := t.CreatedAt
			old.ConsumedAt = &at
			v.s.resets[k] = old
		}
	}
	v.s.resets[t.Token] = *t
	return nil
}

func (v *view) GetResetToken(_ context.Context, token string) (*loyalty.ResetToken, error) {
	t, ok := v.s.resets[token]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v *view) ConsumeResetToken(_ context.Context, token string, at time.Time) error {
	t, ok := v.s.resets[token]
	if !ok {
		return loyalty.ErrResetTokenNotFound
	}
	if t.ConsumedAt != nil {
		return loyalty.ErrResetTokenExpired
	}
	t.ConsumedAt = &at
	v.s.resets[token] = t
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func paginate[T any](items []T, p loyalty.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
