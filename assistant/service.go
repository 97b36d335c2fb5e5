/*
Package assistant answers members' questions about their points.

Each message is sent to a language model together with a short briefing
built from the store: the caller's name, role and balance, the next
published events and the promotions running now. The model only ever sees
what the caller could read through the API anyway. It never acts on the
ledger.

PROVIDERS:
  openai  github.com/sashabaranov/go-openai chat completions
  gemini  github.com/google/generative-ai-go
  A Service without a model answers every message with ErrDisabled.

SEE ALSO:
  - config/config.go: assistant.provider, assistant.model, assistant.api_key
*/
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/campus/rewards-engine/loyalty"
)

const (
	MaxMessageLength = 1000
	briefingItems    = 5
	replyTimeout     = 12 * time.Second

	// FallbackReply is sent when the model returns nothing.
	FallbackReply = "Sorry, I'm not sure."
)

var ErrDisabled = fmt.Errorf("%w: the assistant is not configured", loyalty.ErrUnavailable)

type Service struct {
	Store loyalty.Store
	Model Model
	Now   func() time.Time
}

// NewService returns a service with no model; set Model to enable it.
func NewService(store loyalty.Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Chat answers message for actor.
func (s *Service) Chat(ctx context.Context, actor loyalty.Actor, message string) (string, error) {
	if s.Model == nil {
		return "", ErrDisabled
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", loyalty.Invalid("message", "is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return "", loyalty.Invalid("message", "must be at most %d characters", MaxMessageLength)
	}

	briefing, err := s.Briefing(ctx, actor)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	reply, err := s.Model.Reply(ctx, briefing, message)
	if err != nil {
		return "", fmt.Errorf("assistant reply: %w", err)
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		return FallbackReply, nil
	}
	return reply, nil
}

// Briefing is the system prompt for actor.
func (s *Service) Briefing(ctx context.Context, actor loyalty.Actor) (string, error) {
	u, err := s.Store.GetUser(ctx, actor.UserID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", loyalty.ErrUserNotFound
	}

	now := s.Now()
	published, ended := true, false
	events, _, err := s.Store.ListEvents(ctx, loyalty.EventFilter{
		Published: &published,
		Ended:     &ended,
		ShowFull:  true,
		Now:       now,
		Page:      loyalty.Page{Page: 1, Limit: briefingItems},
	})
	if err != nil {
		return "", err
	}
	promos, _, err := s.Store.ListPromotions(ctx, loyalty.PromotionFilter{
		ActiveOnly: true,
		Now:        now,
		Page:       loyalty.Page{Page: 1, Limit: briefingItems},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are the help desk of the campus rewards program. Members earn one point per $0.25 spent, ")
	b.WriteString("plus promotion bonuses and event awards, and spend points on redemptions or transfers. ")
	b.WriteString("Answer briefly and only from the facts below; say so when you do not know.\n\n")
	fmt.Fprintf(&b, "Member: %s (%s), role %s, balance %d points", u.Name, u.Utorid, u.Role, u.Points)
	if !u.Verified {
		b.WriteString(", not yet verified (redemptions and transfers need verification)")
	}
	fmt.Fprintf(&b, ".\nToday: %s.\n", now.Format("Monday, January 2, 2006 15:04 MST"))

	b.WriteString("\nUpcoming events:\n")
	if len(events) == 0 {
		b.WriteString("- none scheduled\n")
	}
	for _, e := range events {
		fmt.Fprintf(&b, "- %s at %s, %s", e.Name, e.Location, e.StartTime.Format("Jan 2 15:04"))
		if e.IsFull() {
			b.WriteString(" (full)")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPromotions running now:\n")
	if len(promos) == 0 {
		b.WriteString("- none\n")
	}
	for _, p := range promos {
		fmt.Fprintf(&b, "- %s (%s, until %s): %s\n", p.Name, p.Type, p.EndTime.Format("Jan 2"), p.Description)
	}
	return b.String(), nil
}
