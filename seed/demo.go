/*
Package seed loads a demo campus for development and demonstrations.

HOW THE DEMO IS BUILT:
 1. Staff and students are created directly in the store, verified, all
    sharing one password
 2. Promotions and events are created through their services as a manager
 3. Points move only through the ledger (purchases, awards, transfers,
    redemptions) so every balance replays cleanly

Every operation runs against a clock pinned to Options.Now, so the demo is
reproducible and the "not in the past" rules accept it.

NOTE:
  Demo refuses to run twice against the same store. Only use it in
  development environments.

SEE ALSO:
  - cmd/seed: command-line entry point
  - cmd/createsu: bootstrap a single superuser instead
*/
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/event"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/promotion"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Password123!"

var ErrAlreadySeeded = errors.New("store already holds demo data")

type Options struct {
	Password string
	Now      time.Time
}

// Result is what the demo created.
type Result struct {
	Users        map[string]loyalty.User
	Promotions   []loyalty.Promotion
	Events       []loyalty.Event
	Transactions int
}

type person struct {
	utorid, name string
	role         loyalty.Role
}

var people = []person{
	{"superadm", "Super Admin", loyalty.RoleSuperuser},
	{"manager1", "John Manager", loyalty.RoleManager},
	{"cashier1", "Main Cashier", loyalty.RoleCashier},
	{"organiz1", "Olivia Organizer", loyalty.RoleRegular},
	{"student1", "Alex Martin", loyalty.RoleRegular},
	{"student2", "Bob Smith", loyalty.RoleRegular},
	{"student3", "Xu Williams", loyalty.RoleRegular},
	{"student4", "Lily Cool", loyalty.RoleRegular},
	{"student5", "Emily Bob", loyalty.RoleRegular},
	{"student6", "Frank Miller", loyalty.RoleRegular},
}

type demo struct {
	store      loyalty.TxStore
	now        time.Time
	ledger     *ledger.Engine
	events     *event.Service
	promotions *promotion.Service
	out        *Result
}

// Demo populates an empty store.
func Demo(ctx context.Context, store loyalty.TxStore, opts Options) (*Result, error) {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	existing, err := store.GetUserByUtorid(ctx, people[0].utorid)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadySeeded
	}

	clock := func() time.Time { return opts.Now }
	d := &demo{
		store:      store,
		now:        opts.Now,
		ledger:     &ledger.Engine{Store: store, Now: clock},
		events:     &event.Service{Store: store, Now: clock},
		promotions: &promotion.Service{Store: store, Now: clock},
		out:        &Result{Users: make(map[string]loyalty.User)},
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"users", func(ctx context.Context) error { return d.users(ctx, opts.Password) }},
		{"promotions", d.promos},
		{"events", d.campusEvents},
		{"purchases", d.purchases},
		{"awards", d.awards},
		{"transfers", d.transfers},
		{"redemptions", d.redemptions},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return nil, fmt.Errorf("seed %s: %w", step.name, err)
		}
	}
	return d.out, nil
}

func (d *demo) actor(utorid string) loyalty.Actor {
	u := d.out.Users[utorid]
	return loyalty.Actor{UserID: u.ID, Role: u.Role}
}

func (d *demo) users(ctx context.Context, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	for _, p := range people {
		u := &loyalty.User{
			Utorid:       p.utorid,
			Email:        p.utorid + "@mail.utoronto.ca",
			Name:         p.name,
			Role:         p.role,
			Verified:     true,
			PasswordHash: hash,
			CreatedAt:    d.now,
		}
		if err := d.store.CreateUser(ctx, u); err != nil {
			return err
		}
		d.out.Users[p.utorid] = *u
	}
	return nil
}

func (d *demo) promos(ctx context.Context) error {
	manager := d.actor("manager1")
	ten, hundred := int64(10), int64(100)
	five := decimal.NewFromInt(5)
	double := decimal.NewFromInt(4)
	drafts := []promotion.Draft{
		{
			Name:        "Coffee Bonus",
			Description: "Ten extra points on any purchase of $5 or more.",
			Type:        string(loyalty.PromotionAutomatic),
			MinSpending: &five,
			Points:      &ten,
		},
		{
			Name:        "Double Points Week",
			Description: "Earn double points on every purchase.",
			Type:        string(loyalty.PromotionAutomatic),
			Rate:        &double,
		},
		{
			Name:        "Welcome Back",
			Description: "One hundred points on your first purchase of the term.",
			Type:        string(loyalty.PromotionOneTime),
			Points:      &hundred,
		},
	}
	for _, draft := range drafts {
		draft.StartTime = d.now
		draft.EndTime = d.now.AddDate(0, 0, 30)
		p, err := d.promotions.Create(ctx, manager, draft)
		if err != nil {
			return err
		}
		d.out.Promotions = append(d.out.Promotions, *p)
	}
	return nil
}

type campusEvent struct {
	draft      event.Draft
	inDays     int
	hours      time.Duration
	organizers []string
	guests     []string
}

func (d *demo) campusEvents(ctx context.Context) error {
	manager := d.actor("manager1")
	capacity := func(n int) *int { return &n }
	defs := []campusEvent{
		{
			draft: event.Draft{
				Name:        "Welcome Week Mixer",
				Description: "Meet new classmates over snacks and games.",
				Location:    "Hart House, 7 Hart House Circle",
				Capacity:    capacity(100),
				Points:      1000,
			},
			inDays: 3, hours: 3,
			organizers: []string{"organiz1"},
			guests:     []string{"student1", "student2", "student3", "student4"},
		},
		{
			draft: event.Draft{
				Name:        "Computer Science Career Fair",
				Description: "Talk to recruiters from local and global tech companies.",
				Location:    "Bahen Centre, 40 St. George Street",
				Capacity:    capacity(300),
				Points:      2000,
			},
			inDays: 10, hours: 5,
			guests: []string{"student1", "student5", "student6"},
		},
		{
			draft: event.Draft{
				Name:        "Resume Review Session",
				Description: "Bring a printed resume for one-on-one feedback.",
				Location:    "Career Exploration Centre, 214 College Street",
				Points:      400,
			},
			inDays: 14, hours: 2,
			organizers: []string{"organiz1"},
			guests:     []string{"student4", "student5"},
		},
	}

	published := true
	for _, def := range defs {
		draft := def.draft
		draft.StartTime = d.now.AddDate(0, 0, def.inDays)
		draft.EndTime = draft.StartTime.Add(def.hours * time.Hour)
		e, err := d.events.Create(ctx, manager, draft)
		if err != nil {
			return err
		}
		if _, err := d.events.Update(ctx, manager, e.ID, event.Patch{Published: &published}); err != nil {
			return err
		}
		for _, utorid := range def.organizers {
			if _, err := d.events.AddOrganizer(ctx, manager, e.ID, utorid); err != nil {
				return err
			}
		}
		for _, utorid := range def.guests {
			if _, _, err := d.events.AddGuest(ctx, manager, e.ID, utorid); err != nil {
				return err
			}
		}
		if e, err = d.events.Get(ctx, manager, e.ID); err != nil {
			return err
		}
		d.out.Events = append(d.out.Events, *e)
	}
	return nil
}

func (d *demo) purchases(ctx context.Context) error {
	cashier := d.actor("cashier1")
	welcome := d.out.Promotions[2].ID
	sales := []struct {
		utorid string
		spent  string
		promos []int64
		remark string
	}{
		{"student1", "12.50", []int64{welcome}, "Coffee and donut"},
		{"student2", "4.75", nil, "Bottled water"},
		{"student3", "18.25", nil, "Lunch combo"},
		{"student4", "6.00", nil, "Snack pack"},
		{"student5", "9.80", []int64{welcome}, "Breakfast sandwich"},
		{"student6", "7.40", nil, "Smoothie"},
		{"student1", "3.25", nil, "Protein bar"},
		{"organiz1", "22.00", nil, "Catering supplies"},
	}
	for _, s := range sales {
		if _, err := d.ledger.Purchase(ctx, cashier, ledger.PurchaseRequest{
			Utorid:       s.utorid,
			Spent:        decimal.RequireFromString(s.spent),
			PromotionIDs: s.promos,
			Remark:       s.remark,
		}); err != nil {
			return err
		}
		d.out.Transactions++
	}
	return nil
}

func (d *demo) awards(ctx context.Context) error {
	mixer := d.out.Events[0]
	organizer := d.actor("organiz1")
	txs, err := d.ledger.AwardEvent(ctx, organizer, mixer.ID, ledger.AwardRequest{Amount: 50, Remark: "Thanks for coming"})
	if err != nil {
		return err
	}
	d.out.Transactions += len(txs)

	txs, err = d.ledger.AwardEvent(ctx, d.actor("manager1"), d.out.Events[1].ID,
		ledger.AwardRequest{Utorid: "student5", Amount: 150, Remark: "Volunteer"})
	if err != nil {
		return err
	}
	d.out.Transactions += len(txs)
	return nil
}

func (d *demo) transfers(ctx context.Context) error {
	if _, err := d.ledger.Transfer(ctx, d.actor("student1"), d.out.Users["student2"].ID,
		ledger.TransferRequest{Amount: 20, Remark: "Lunch money"}); err != nil {
		return err
	}
	d.out.Transactions += 2
	return nil
}

// redemptions leaves one request pending for the cashier to process.
func (d *demo) redemptions(ctx context.Context) error {
	done, err := d.ledger.OpenRedemption(ctx, d.actor("cashier1"), "student5",
		ledger.RedemptionRequest{Amount: 100, Remark: "Notebook"})
	if err != nil {
		return err
	}
	if _, err := d.ledger.ProcessRedemption(ctx, d.actor("cashier1"), done.ID); err != nil {
		return err
	}
	if _, err := d.ledger.RequestRedemption(ctx, d.actor("student3"),
		ledger.RedemptionRequest{Amount: 40, Remark: "Water bottle"}); err != nil {
		return err
	}
	d.out.Transactions += 2
	return nil
}
