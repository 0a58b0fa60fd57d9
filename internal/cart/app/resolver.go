package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
)

// Auth is the caller's authentication state as seen by the boundary layer.
type Auth struct {
	UserID uuid.UUID
}

func Anonymous() Auth { return Auth{} }

func Authenticated(userID uuid.UUID) Auth { return Auth{UserID: userID} }

func (a Auth) IsAuthenticated() bool {
	return a.UserID != uuid.Nil
}

// CookieDirective tells the boundary what to do with the anonymous cart
// cookie. On rotation both fields are set: clear the old value, then set Set.
type CookieDirective struct {
	Clear bool
	Set   string
}

func (d CookieDirective) IsZero() bool {
	return !d.Clear && d.Set == ""
}

type Resolution struct {
	Cart   domain.Cart
	Cookie CookieDirective
}

type Resolver struct {
	svc      *Service
	store    Store
	tokens   TokenGenerator
	lifetime time.Duration
	now      Clock
}

func NewResolver(svc *Service, store Store, tokens TokenGenerator, lifetime time.Duration) *Resolver {
	return &Resolver{
		svc:      svc,
		store:    store,
		tokens:   tokens,
		lifetime: lifetime,
		now:      svc.now,
	}
}

// Resolve returns the cart a request operates on. It never writes cookies
// itself; side effects on the client are reported through the directive.
func (r *Resolver) Resolve(ctx context.Context, auth Auth, tokenValue string) (Resolution, error) {
	if auth.IsAuthenticated() {
		cart, err := r.svc.GetOrCreateForUser(ctx, auth.UserID)
		if err != nil {
			return Resolution{}, fmt.Errorf("user cart: %w", err)
		}
		return Resolution{Cart: cart}, nil
	}

	if tokenValue != "" {
		tok, err := r.store.FindToken(ctx, tokenValue)
		switch {
		case err == nil && !tok.IsExpired(r.now()):
			cart, err := r.svc.GetOrCreateForToken(ctx, tok)
			if err != nil {
				return Resolution{}, fmt.Errorf("token cart: %w", err)
			}
			return Resolution{Cart: cart}, nil
		case err == nil:
			res, rotated, err := r.rotate(ctx, tokenValue)
			if err != nil {
				return Resolution{}, err
			}
			if rotated {
				return res, nil
			}
		case !errors.Is(err, ErrNotFound):
			return Resolution{}, fmt.Errorf("find cart token: %w", err)
		}
	}

	return r.issue(ctx)
}

// rotate replaces an expired token, keeping the cart and its line items. It
// reports false when the token vanished before the lock was taken, which
// happens when a concurrent request rotated it first.
func (r *Resolver) rotate(ctx context.Context, oldValue string) (Resolution, bool, error) {
	newValue, err := r.tokens.NewToken()
	if err != nil {
		return Resolution{}, false, fmt.Errorf("generate cart token: %w", err)
	}

	var (
		cart    domain.Cart
		rotated bool
	)
	err = r.store.WithinTx(ctx, func(q Queries) error {
		old, err := q.LockToken(ctx, oldValue)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock cart token: %w", err)
		}

		fresh, err := q.CreateToken(ctx, newValue, r.now().Add(r.lifetime))
		if err != nil {
			return fmt.Errorf("create cart token: %w", err)
		}

		cart, err = q.FindCartByToken(ctx, old.ID)
		switch {
		case err == nil:
			cart, err = q.ReassignCartToken(ctx, cart.ID, fresh.ID)
			if err != nil {
				return fmt.Errorf("reassign cart token: %w", err)
			}
		case errors.Is(err, ErrNotFound):
			cart, err = q.GetOrCreateCart(ctx, domain.TokenOwner(fresh.ID))
			if err != nil {
				return fmt.Errorf("create token cart: %w", err)
			}
		default:
			return fmt.Errorf("find token cart: %w", err)
		}

		if err := q.DeleteToken(ctx, old.ID); err != nil {
			return fmt.Errorf("delete expired token: %w", err)
		}
		rotated = true
		return nil
	})
	if err != nil || !rotated {
		return Resolution{}, false, err
	}

	r.svc.publish(ctx, domain.Event{Type: domain.EventTokenRotated, CartID: cart.ID})
	return Resolution{Cart: cart, Cookie: CookieDirective{Clear: true, Set: newValue}}, true, nil
}

func (r *Resolver) issue(ctx context.Context) (Resolution, error) {
	value, err := r.tokens.NewToken()
	if err != nil {
		return Resolution{}, fmt.Errorf("generate cart token: %w", err)
	}

	var cart domain.Cart
	err = r.store.WithinTx(ctx, func(q Queries) error {
		tok, err := q.CreateToken(ctx, value, r.now().Add(r.lifetime))
		if err != nil {
			return fmt.Errorf("create cart token: %w", err)
		}
		cart, err = q.GetOrCreateCart(ctx, domain.TokenOwner(tok.ID))
		if err != nil {
			return fmt.Errorf("create token cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Cart: cart, Cookie: CookieDirective{Set: value}}, nil
}

type AdoptResult struct {
	Resolution
	Merge MergeResult
}

// AdoptAnonymousCart is called when an anonymous visitor signs in. The cart
// behind tokenValue is merged into the user's cart and its token deleted,
// and the cookie is cleared. A missing or expired token adopts nothing.
func (r *Resolver) AdoptAnonymousCart(ctx context.Context, userID uuid.UUID, tokenValue string) (AdoptResult, error) {
	userCart, err := r.svc.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return AdoptResult{}, fmt.Errorf("user cart: %w", err)
	}
	res := AdoptResult{Resolution: Resolution{Cart: userCart}}
	if tokenValue == "" {
		return res, nil
	}

	tok, err := r.store.FindToken(ctx, tokenValue)
	if errors.Is(err, ErrNotFound) {
		res.Cookie = CookieDirective{Clear: true}
		return res, nil
	}
	if err != nil {
		return AdoptResult{}, fmt.Errorf("find cart token: %w", err)
	}
	res.Cookie = CookieDirective{Clear: true}
	if tok.IsExpired(r.now()) {
		return res, nil
	}

	anon, err := r.store.FindCartByToken(ctx, tok.ID)
	switch {
	case err == nil:
		res.Merge, err = r.svc.MergeFrom(ctx, userCart, anon)
		if err != nil {
			return AdoptResult{}, err
		}
	case !errors.Is(err, ErrNotFound):
		return AdoptResult{}, fmt.Errorf("find token cart: %w", err)
	}

	if err := r.store.DeleteToken(ctx, tok.ID); err != nil {
		return AdoptResult{}, fmt.Errorf("delete adopted token: %w", err)
	}
	return res, nil
}
