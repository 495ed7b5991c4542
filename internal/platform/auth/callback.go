package auth

import (
	"context"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// loginPage is served at the redirect target. Fragments never reach a
// server, so the page forwards its own #session_id=... fragment to the
// completion endpoint before the handshake can consume it.
const loginPage = `<!DOCTYPE html>
<html>
<head><title>ARI Detect</title></head>
<body>
<p>Processing authentication...</p>
<script>
var h = window.location.hash;
if (h && h.indexOf("session_id=") !== -1) {
  fetch("/dashboard/complete?" + h.substring(1)).then(function () {
    document.body.innerHTML = "<p>Signed in. You can close this window.</p>";
  });
} else {
  document.body.innerHTML = "<p>No session received. You can close this window.</p>";
}
</script>
</body>
</html>`

// CallbackServer is a loopback HTTP listener that receives the identity
// provider's redirect during login and relays the one-time session
// identifier to the waiting handshake. Delivery is one-shot.
type CallbackServer struct {
	e        *echo.Echo
	listener net.Listener
	logger   zerolog.Logger
	ids      chan string
}

// NewCallbackServer binds a listener on addr ("127.0.0.1:8765" by
// convention, ":0" in tests).
func NewCallbackServer(addr string, logger zerolog.Logger) (*CallbackServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &CallbackServer{
		e:        echo.New(),
		listener: l,
		logger:   logger,
		ids:      make(chan string, 1),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.GET("/dashboard", s.handleDashboard)
	s.e.GET("/dashboard/complete", s.handleComplete)
	s.e.Listener = l
	return s, nil
}

// Start serves in the background until Shutdown.
func (s *CallbackServer) Start() {
	go func() {
		if err := s.e.Start(""); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("callback listener stopped")
		}
	}()
}

// Shutdown stops the listener.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// Origin is the http origin of the listener, usable as a redirect target.
func (s *CallbackServer) Origin() string {
	return "http://" + s.listener.Addr().String()
}

// LoginURL builds the identity-provider URL that sends the browser back to
// this listener's /dashboard with the one-time identifier in the fragment.
func (s *CallbackServer) LoginURL(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("redirect", s.Origin()+"/dashboard")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Wait blocks until the redirect delivers a session identifier or ctx ends.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case sid := <-s.ids:
		return sid, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *CallbackServer) handleDashboard(c echo.Context) error {
	return c.HTML(http.StatusOK, loginPage)
}

func (s *CallbackServer) handleComplete(c echo.Context) error {
	sid := c.QueryParam("session_id")
	if sid == "" {
		return c.String(http.StatusBadRequest, "missing session_id")
	}
	select {
	case s.ids <- sid:
		return c.String(http.StatusOK, "ok")
	default:
		// A session was already delivered; the identifier is single-use.
		return c.String(http.StatusConflict, "login already completed")
	}
}
