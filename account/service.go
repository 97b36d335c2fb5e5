/*
service.go - User accounts: registration, profiles and manager updates

PURPOSE:
  Everything about a user except their balance. Points only move through
  the ledger; this package never calls AddPoints.

REGISTRATION:
  A cashier or above registers a user with utorid, name and email. The user
  starts as an unverified regular with a random password and receives an
  activation token (seven days) to set their own.

PROFILES:
  A profile carries the promotions the user can still use: every active
  automatic promotion plus the active one-time promotions they have not
  redeemed yet. Cashiers looking up a customer only see the one-time ones.

MANAGER UPDATES:
  email, verified (true only), suspicious and role. Role grants follow
  loyalty.CanGrantRole, checked against the user as the patch leaves them.

SEE ALSO:
  - auth/service.go:   activation token issuance
  - loyalty/access.go: CapRegisterUser, CapUpdateUser, CanGrantRole
*/
package account

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/loyalty"
)

var (
	utoridPattern = regexp.MustCompile(`^[A-Za-z0-9]{7,8}$`)
	// Registration accepts any local part; later edits use the stricter form.
	registerEmailPattern = regexp.MustCompile(`^[^@\s]+@mail\.utoronto\.ca$`)
	emailPattern         = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@mail\.utoronto\.ca$`)
)

type Service struct {
	Store loyalty.TxStore
	Auth  *auth.Service
	Now   func() time.Time
}

func NewService(store loyalty.TxStore, authSvc *auth.Service) *Service {
	return &Service{Store: store, Auth: authSvc, Now: time.Now}
}

// =============================================================================
// REGISTRATION
// =============================================================================

type Registration struct {
	Utorid string
	Name   string
	Email  string
}

// Register creates the user and their activation token in one commit.
func (s *Service) Register(ctx context.Context, actor loyalty.Actor, r Registration) (*loyalty.User, *loyalty.ResetToken, error) {
	if err := loyalty.Authorize(actor, loyalty.CapRegisterUser, loyalty.Scope{}).Err(); err != nil {
		return nil, nil, err
	}
	utorid := strings.TrimSpace(r.Utorid)
	if !utoridPattern.MatchString(utorid) {
		return nil, nil, loyalty.Invalid("utorid", "must be 7 or 8 letters and digits")
	}
	name := strings.TrimSpace(r.Name)
	if err := checkName(name); err != nil {
		return nil, nil, err
	}
	email := strings.TrimSpace(r.Email)
	if !registerEmailPattern.MatchString(email) {
		return nil, nil, loyalty.Invalid("email", "must be a @mail.utoronto.ca address")
	}

	hash, err := auth.HashPassword(uuid.NewString()[:8])
	if err != nil {
		return nil, nil, err
	}

	u := &loyalty.User{
		Utorid:       utorid,
		Email:        email,
		Name:         name,
		Role:         loyalty.RoleRegular,
		PasswordHash: hash,
		CreatedAt:    s.Now(),
	}
	var token *loyalty.ResetToken
	err = s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		token, err = s.Auth.IssueResetToken(ctx, tx, u.ID, loyalty.ResetActivation, auth.ActivationTTL)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, token, nil
}

// =============================================================================
// PROFILES
// =============================================================================

// Profile is a user plus the promotions they can still use.
type Profile struct {
	User       loyalty.User
	Promotions []loyalty.Promotion
}

// Me returns the actor's own profile.
func (s *Service) Me(ctx context.Context, actor loyalty.Actor) (*Profile, error) {
	u, err := s.user(ctx, s.Store, actor.UserID)
	if err != nil {
		return nil, err
	}
	promos, err := s.available(ctx, u.ID, loyalty.PromotionAutomatic, loyalty.PromotionOneTime)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, Promotions: promos}, nil
}

// Get looks up another user. Callers below manager should render a reduced
// view of the result.
func (s *Service) Get(ctx context.Context, actor loyalty.Actor, id int64) (*Profile, error) {
	if err := loyalty.Authorize(actor, loyalty.CapReadUsers, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	u, err := s.user(ctx, s.Store, id)
	if err != nil {
		return nil, err
	}
	promos, err := s.available(ctx, u.ID, loyalty.PromotionOneTime)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, Promotions: promos}, nil
}

func (s *Service) List(ctx context.Context, actor loyalty.Actor, f loyalty.UserFilter) ([]loyalty.User, int, error) {
	if err := loyalty.Authorize(actor, loyalty.CapListUsers, loyalty.Scope{}).Err(); err != nil {
		return nil, 0, err
	}
	return s.Store.ListUsers(ctx, f)
}

// available lists active promotions of the given types, minus one-time
// promotions userID already used.
func (s *Service) available(ctx context.Context, userID int64, types ...loyalty.PromotionType) ([]loyalty.Promotion, error) {
	now := s.Now()
	out := []loyalty.Promotion{}
	for _, typ := range types {
		promos, err := s.Store.ActivePromotions(ctx, typ, now)
		if err != nil {
			return nil, fmt.Errorf("list %s promotions: %w", typ, err)
		}
		for _, p := range promos {
			if typ == loyalty.PromotionOneTime {
				used, err := s.Store.HasUsedPromotion(ctx, userID, p.ID)
				if err != nil {
					return nil, err
				}
				if used {
					continue
				}
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// UPDATES
// =============================================================================

// Patch is a manager's edit of another user. Role is the role name.
type Patch struct {
	Email      *string
	Verified   *bool
	Suspicious *bool
	Role       *string
}

func (s *Service) Update(ctx context.Context, actor loyalty.Actor, id int64, p Patch) (*loyalty.User, error) {
	if err := loyalty.Authorize(actor, loyalty.CapUpdateUser, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}

	var updated *loyalty.User
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		target, err := s.user(ctx, tx, id)
		if err != nil {
			return err
		}
		patch, err := planUpdate(actor, *target, p)
		if err != nil {
			return err
		}
		if err := tx.UpdateUser(ctx, id, patch); err != nil {
			return err
		}
		updated, err = s.user(ctx, tx, id)
		return err
	})
	return updated, err
}

func planUpdate(actor loyalty.Actor, target loyalty.User, p Patch) (loyalty.UserPatch, error) {
	var patch loyalty.UserPatch
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if !emailPattern.MatchString(email) {
			return patch, loyalty.Invalid("email", "must be a @mail.utoronto.ca address")
		}
		patch.Email = &email
	}
	if p.Verified != nil {
		if !*p.Verified {
			return patch, loyalty.Invalid("verified", "can only be set to true")
		}
		patch.Verified = p.Verified
	}
	if p.Suspicious != nil {
		patch.Suspicious = p.Suspicious
		target.Suspicious = *p.Suspicious
	}
	if p.Role != nil && strings.TrimSpace(*p.Role) != "" {
		role, ok := loyalty.ParseRole(strings.TrimSpace(*p.Role))
		if !ok {
			return patch, loyalty.Invalid("role", "unknown role %q", *p.Role)
		}
		if err := loyalty.CanGrantRole(actor, target, role).Err(); err != nil {
			return patch, err
		}
		patch.Role = &role
	}
	if patch == (loyalty.UserPatch{}) {
		return patch, loyalty.Invalid("", "no valid fields provided")
	}
	return patch, nil
}

// SelfPatch is a user's edit of their own profile.
type SelfPatch struct {
	Name  *string
	Email *string
}

func (s *Service) UpdateSelf(ctx context.Context, actor loyalty.Actor, p SelfPatch) (*loyalty.User, error) {
	if err := loyalty.Authorize(actor, loyalty.CapUpdateSelf, loyalty.Scope{Self: true}).Err(); err != nil {
		return nil, err
	}
	var patch loyalty.UserPatch
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := checkName(name); err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if !emailPattern.MatchString(email) {
			return nil, loyalty.Invalid("email", "must be a @mail.utoronto.ca address")
		}
		patch.Email = &email
	}
	if patch == (loyalty.UserPatch{}) {
		return nil, loyalty.Invalid("", "no valid fields provided")
	}

	var updated *loyalty.User
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		if err := tx.UpdateUser(ctx, actor.UserID, patch); err != nil {
			return err
		}
		var err error
		updated, err = s.user(ctx, tx, actor.UserID)
		return err
	})
	return updated, err
}

func (s *Service) user(ctx context.Context, store loyalty.Store, id int64) (*loyalty.User, error) {
	u, err := store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, loyalty.ErrUserNotFound
	}
	return u, nil
}

func checkName(name string) error {
	if n := utf8.RuneCountInString(name); n < 1 || n > 50 {
		return loyalty.Invalid("name", "must be 1 to 50 characters")
	}
	return nil
}
