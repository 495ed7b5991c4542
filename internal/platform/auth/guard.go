package auth

// Route is a navigation target within the client.
type Route string

const (
	// RouteLanding is the unauthenticated landing state.
	RouteLanding Route = "/"
	// RouteDashboard is the authenticated view.
	RouteDashboard Route = "/dashboard"
)

// Guard is the advisory access check for the authenticated view. It decides
// purely on credential presence; validity is the backend's concern and is
// re-checked authoritatively on every API call.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Allow reports whether the protected view may render.
func (g *Guard) Allow() bool {
	_, ok := g.store.Get()
	return ok
}

// Route resolves the navigation target for the current credential state.
func (g *Guard) Route() Route {
	if g.Allow() {
		return RouteDashboard
	}
	return RouteLanding
}
