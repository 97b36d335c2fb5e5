package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus/rewards-engine/loyalty"
)

const (
	// ResetTTL is the lifetime of a password reset token.
	ResetTTL = time.Hour
	// ActivationTTL is the lifetime of the token issued at registration.
	ActivationTTL = 7 * 24 * time.Hour
	// ResetCooldown is the minimum gap between two reset requests from the
	// same client for the same utorid.
	ResetCooldown = time.Minute
)

// =============================================================================
// SERVICE - Login, password reset, password change
// =============================================================================

type Service struct {
	Store    loyalty.TxStore
	Tokens   *Tokens
	Cooldown Cooldown
	Now      func() time.Time
	NewToken func() string
}

func NewService(store loyalty.TxStore, tokens *Tokens) *Service {
	return &Service{
		Store:    store,
		Tokens:   tokens,
		Cooldown: NewMemoryCooldown(ResetCooldown),
		Now:      time.Now,
		NewToken: uuid.NewString,
	}
}

// Session is a freshly issued login token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Login checks utorid and password, stamps lastLogin and issues a token.
// An unknown utorid and a wrong password fail the same way.
func (s *Service) Login(ctx context.Context, utorid, password string) (*Session, error) {
	if err := required("utorid", utorid, "password", password); err != nil {
		return nil, err
	}
	u, err := s.Store.GetUserByUtorid(ctx, utorid)
	if err != nil {
		return nil, err
	}
	if u == nil || !strings.EqualFold(u.Utorid, utorid) || !CheckPassword(u.PasswordHash, password) {
		return nil, loyalty.ErrBadCredentials
	}

	now := s.Now()
	if err := s.Store.UpdateUser(ctx, u.ID, loyalty.UserPatch{LastLogin: &now}); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	token, expiresAt, err := s.Tokens.Issue(*u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// ResetRequest asks for a password reset token.
type ResetRequest struct {
	Utorid   string
	Email    string
	ClientIP string
}

// RequestReset issues a one-hour reset token. The token is returned to the
// caller; delivering it is out of scope.
func (s *Service) RequestReset(ctx context.Context, req ResetRequest) (*loyalty.ResetToken, error) {
	if err := required("utorid", req.Utorid, "email", req.Email); err != nil {
		return nil, err
	}
	u, err := s.Store.GetUserByUtorid(ctx, req.Utorid)
	if err != nil {
		return nil, err
	}
	if u == nil || !strings.EqualFold(u.Utorid, req.Utorid) {
		return nil, loyalty.ErrUserNotFound
	}
	if !strings.EqualFold(u.Email, req.Email) {
		return nil, loyalty.Invalid("email", "does not match utorid")
	}
	if !s.Cooldown.Allow(req.ClientIP + "|" + strings.ToLower(u.Utorid)) {
		return nil, loyalty.ErrResetCooldown
	}
	return s.IssueResetToken(ctx, s.Store, u.ID, loyalty.ResetPassword, ResetTTL)
}

// IssueResetToken stores a new token for userID through store, retiring
// the user's older tokens. Registration calls it inside its own WithTx.
func (s *Service) IssueResetToken(ctx context.Context, store loyalty.Store, userID int64, kind loyalty.ResetKind, ttl time.Duration) (*loyalty.ResetToken, error) {
	now := s.Now()
	t := &loyalty.ResetToken{
		Token:     s.NewToken(),
		Kind:      kind,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := store.IssueResetToken(ctx, t); err != nil {
		return nil, fmt.Errorf("issue %s token: %w", kind, err)
	}
	return t, nil
}

// CompleteReset sets a new password with a reset or activation token. The
// password change and the token consumption commit together.
func (s *Service) CompleteReset(ctx context.Context, token, utorid, password string) error {
	if err := required("utorid", utorid, "password", password); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	now := s.Now()
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		t, err := tx.GetResetToken(ctx, token)
		if err != nil {
			return err
		}
		if t == nil {
			return loyalty.ErrResetTokenNotFound
		}
		if !t.Usable(now) {
			return loyalty.ErrResetTokenExpired
		}
		u, err := tx.GetUser(ctx, t.UserID)
		if err != nil {
			return err
		}
		if u == nil || !strings.EqualFold(u.Utorid, utorid) {
			return loyalty.ErrTokenMismatch
		}
		if err := tx.UpdateUser(ctx, u.ID, loyalty.UserPatch{PasswordHash: &hash}); err != nil {
			return err
		}
		return tx.ConsumeResetToken(ctx, token, now)
	})
}

// ChangePassword replaces the actor's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, actor loyalty.Actor, old, replacement string) error {
	if err := required("old", old, "new", replacement); err != nil {
		return err
	}
	if err := ValidatePassword(replacement); err != nil {
		return err
	}
	u, err := s.Store.GetUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return loyalty.ErrUserNotFound
	}
	if !CheckPassword(u.PasswordHash, old) {
		return loyalty.ErrWrongPassword
	}
	hash, err := HashPassword(replacement)
	if err != nil {
		return err
	}
	return s.Store.UpdateUser(ctx, u.ID, loyalty.UserPatch{PasswordHash: &hash})
}

// required takes (field, value) pairs and rejects the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return loyalty.Invalid(pairs[i], "is required")
		}
	}
	return nil
}
