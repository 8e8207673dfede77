// Package auth implements spec.md §4.C: authenticating the invoking user,
// consulting and maintaining the short-lived on-disk authentication cache,
// and protecting the prompt against brute-force retries.
package auth

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sandinak/sudosh/internal/errs"
)

// Verifier checks a plaintext password against the system's authentication
// stack for a user. PAM is the production implementation; tests supply a
// fake.
type Verifier interface {
	Verify(user, password string) error
}

// Authenticator ties together the cache, the throttle, and a Verifier to
// implement the full re-authentication decision from §4.C: a cache hit
// within its timeout skips the prompt entirely; otherwise the user is
// prompted (subject to rate limiting) and a success is cached.
type Authenticator struct {
	Verifier Verifier
	Cache    *Cache
	Throttle *Throttle
	// Prompt renders the password prompt and reads the response. Replaced
	// in tests.
	Prompt func(user string) (string, error)
}

// New builds an Authenticator with the production password prompt.
func New(v Verifier, cache *Cache, throttle *Throttle) *Authenticator {
	return &Authenticator{
		Verifier: v,
		Cache:    cache,
		Throttle: throttle,
		Prompt:   PromptPassword,
	}
}

// Ensure verifies that user is currently authenticated for tty, either via
// a live cache entry or by prompting and caching a fresh success. It
// returns an *errs.Error with errs.KindAuth on any failure.
func (a *Authenticator) Ensure(user, tty string, uid uint32, hostname string) error {
	if a.Cache != nil {
		if ok := a.Cache.Valid(user, tty, uid); ok {
			log.Debug().Str("user", user).Msg("authentication cache hit")
			return nil
		}
	}

	if a.Throttle != nil {
		wait, blocked := a.Throttle.Check(user)
		if blocked {
			return errs.New(errs.KindAuth, fmt.Sprintf("too many failed authentication attempts; retry after %s", wait)).
				WithSuggestion("wait before trying again")
		}
	}

	password, err := a.Prompt(user)
	if err != nil {
		return errs.Wrap(errs.KindAuth, "reading password", err)
	}

	if err := a.Verifier.Verify(user, password); err != nil {
		if a.Throttle != nil {
			a.Throttle.RecordFailure(user)
		}
		return errs.Wrap(errs.KindAuth, "authentication failed", err)
	}

	if a.Throttle != nil {
		a.Throttle.RecordSuccess(user)
	}
	if a.Cache != nil {
		if err := a.Cache.Record(user, tty, uid, hostname); err != nil {
			log.Warn().Err(err).Msg("failed to persist authentication cache entry")
		}
	}
	return nil
}

// Invalidate clears any cached authentication for user, used by the "-k"
// flag and by administrative resets.
func (a *Authenticator) Invalidate(user string) error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.InvalidateUser(user)
}

// defaultTimeout is the fallback cache lifetime when none is configured.
const defaultTimeout = 15 * time.Minute
