package services

import (
	"time"

	"crossbuy/internal/domain"
)

// Actor is whoever triggered an operation, as resolved by the auth middleware.
type Actor struct {
	ID    string
	Admin bool
}

func ActorFromUser(u *domain.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Admin: u.IsAdmin()}
}

func (a Actor) canSee(o *domain.Order) bool { return a.Admin || o.OwnedBy(a.ID) }

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
