package auth

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/aridetect/aridetect/internal/platform/api"
)

// State is a handshake phase. The machine runs Start -> ExchangePending ->
// {Authenticated, Failed}; the "no identifier present" entry resolves
// directly from the credential store.
type State int

const (
	StateStart State = iota
	StateExchangePending
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateExchangePending:
		return "exchange_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Exchanger trades a one-time session identifier for a durable credential.
// Satisfied by *api.Client.
type Exchanger interface {
	ExchangeSession(ctx context.Context, sessionID string) (*api.SessionGrant, error)
}

// Result is the outcome of one handshake entry.
type Result struct {
	State    State
	Route    Route
	Location *url.URL      // location with the one-time fragment stripped
	User     *api.Identity // set when the exchange returned the identity
}

// Handshake consumes a navigation location that may carry a one-time session
// identifier in its transient fragment, exchanges it for a durable
// credential and decides where the client goes next.
type Handshake struct {
	store     Store
	exchanger Exchanger
	logger    zerolog.Logger
}

func NewHandshake(store Store, exchanger Exchanger, logger zerolog.Logger) *Handshake {
	return &Handshake{store: store, exchanger: exchanger, logger: logger}
}

// ParseSessionID extracts the one-time identifier from a location fragment
// of the form "#session_id=...". The identifier travels in the fragment so
// it is never logged server-side or bookmarkable.
func ParseSessionID(loc *url.URL) (string, bool) {
	if loc == nil || loc.Fragment == "" {
		return "", false
	}
	values, err := url.ParseQuery(loc.Fragment)
	if err != nil {
		return "", false
	}
	sid := values.Get("session_id")
	return sid, sid != ""
}

// stripFragment returns a copy of loc with the transient fragment removed,
// so a reload of the same location does not re-trigger the exchange.
func stripFragment(loc *url.URL) *url.URL {
	clean := *loc
	clean.Fragment = ""
	clean.RawFragment = ""
	return &clean
}

// Process runs the handshake for the given location.
//
// With an identifier present the exchange is attempted exactly once: on
// success the credential is stored and the client proceeds to the dashboard
// with a cleaned location; on any failure nothing is stored and the client
// lands unauthenticated. Without an identifier (including re-entry after a
// strip) the credential store alone decides the route.
func (h *Handshake) Process(ctx context.Context, loc *url.URL) Result {
	sid, ok := ParseSessionID(loc)
	if !ok {
		if _, live := h.store.Get(); live {
			return Result{State: StateAuthenticated, Route: RouteDashboard, Location: loc}
		}
		return Result{State: StateFailed, Route: RouteLanding, Location: loc}
	}

	h.logger.Debug().Str("state", StateExchangePending.String()).Msg("exchanging one-time session identifier")

	grant, err := h.exchanger.ExchangeSession(ctx, sid)
	if err != nil {
		h.logger.Warn().Err(err).Msg("session exchange failed")
		_ = h.store.Clear()
		return Result{State: StateFailed, Route: RouteLanding, Location: stripFragment(loc)}
	}
	if err := h.store.Set(grant.SessionToken); err != nil {
		h.logger.Error().Err(err).Msg("persisting credential failed")
		_ = h.store.Clear()
		return Result{State: StateFailed, Route: RouteLanding, Location: stripFragment(loc)}
	}

	h.logger.Info().Str("user", grant.User.Name).Msg("authenticated")
	return Result{
		State:    StateAuthenticated,
		Route:    RouteDashboard,
		Location: stripFragment(loc),
		User:     &grant.User,
	}
}
