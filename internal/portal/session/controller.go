// Package session drives the portal's authentication surface: one of four
// form modes at a time, the held identity, and the transitions between them.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aussieverify/aussieverify/internal/portal/client"
	"github.com/aussieverify/aussieverify/types"
)

// Mode is the active authentication form.
type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
	ModeForgot   Mode = "forgot"
	ModeReset    Mode = "reset"
)

// RecoveryMarker is the query parameter value the emailed link carries. Its
// presence at startup opens the reset form instead of login.
const RecoveryMarker = "recovery"

var (
	// ErrBusy rejects an operation while the same operation is already in
	// flight, so a double submit cannot fire twice.
	ErrBusy = errors.New("operation already in progress")

	// ErrNoRecoverySession is returned by UpdatePassword without an active
	// recovery session.
	ErrNoRecoverySession = errors.New("no recovery session — use the email link again")
)

// StartParams carries the query parameters the portal was opened with.
type StartParams struct {
	Type  string
	Token string
}

// Notifier receives user-visible notices. Provider failures surface here;
// there is no automatic retry.
type Notifier func(notice string)

// Controller owns the authentication state machine.
type Controller struct {
	api    client.Client
	notify Notifier

	mu       sync.Mutex
	mode     Mode
	session  *client.Session
	busy     map[string]bool
	events   <-chan client.SessionEvent
	unsub    func()
	stopped  chan struct{}
	finished sync.WaitGroup
}

// NewController constructs a controller. The initial mode is login unless
// the start parameters carry the recovery marker, in which case the reset
// form opens and the token is exchanged for a recovery session. notify may
// be nil.
func NewController(ctx context.Context, api client.Client, params StartParams, notify Notifier) *Controller {
	if notify == nil {
		notify = func(string) {}
	}

	c := &Controller{
		api:     api,
		notify:  notify,
		mode:    ModeLogin,
		session: api.CurrentSession(),
		busy:    make(map[string]bool),
		stopped: make(chan struct{}),
	}

	c.events, c.unsub = api.SubscribeSessions()
	c.finished.Add(1)
	go c.mirror()

	if params.Type == RecoveryMarker && strings.TrimSpace(params.Token) != "" {
		c.mode = ModeReset
		if established, err := api.ExchangeRecovery(ctx, params.Token); err != nil {
			notify(err.Error())
			c.mode = ModeLogin
		} else {
			c.session = established
		}
	}

	return c
}

// mirror keeps the local identity in step with client session events.
func (c *Controller) mirror() {
	defer c.finished.Done()
	for {
		select {
		case <-c.stopped:
			return
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.mu.Lock()
			c.session = event.Session
			c.mu.Unlock()
		}
	}
}

// Mode returns the active form.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the active form.
func (c *Controller) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// Session returns the held session, or nil when signed out.
func (c *Controller) Session() *client.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Busy reports whether the named operation is in flight.
func (c *Controller) Busy(op string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[op]
}

// Login signs in with the given credentials.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	release, err := c.acquire("login")
	if err != nil {
		return err
	}
	defer release()

	established, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.notify(err.Error())
		return err
	}
	c.setSession(established)
	return nil
}

// Register creates an account. With an immediate session the default profile
// row is written so the portal never sees an absent profile. Without one the
// form drops back to login with a check-your-inbox notice.
func (c *Controller) Register(ctx context.Context, email, password string) error {
	release, err := c.acquire("register")
	if err != nil {
		return err
	}
	defer release()

	session, err := c.api.Register(ctx, email, password)
	if err != nil {
		c.notify(err.Error())
		return err
	}

	if session == nil {
		c.SetMode(ModeLogin)
		c.notify("Check your inbox to confirm your email, then login.")
		return nil
	}
	c.setSession(session)

	if _, err := c.api.SaveProfile(ctx, types.DefaultProfile(session.UserID)); err != nil {
		c.notify(err.Error())
	}
	return nil
}

// SendReset requests a recovery mail and returns to the login form. The auth
// state is untouched either way.
func (c *Controller) SendReset(ctx context.Context, email string) error {
	release, err := c.acquire("forgot")
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.SendReset(ctx, email); err != nil {
		c.notify(err.Error())
		return err
	}

	c.SetMode(ModeLogin)
	c.notify("Check your email for a reset link.")
	return nil
}

// UpdatePassword completes a recovery. It is valid only on the reset form
// with an active recovery session.
func (c *Controller) UpdatePassword(ctx context.Context, newPassword string) error {
	release, err := c.acquire("reset")
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	onResetForm := c.mode == ModeReset
	hasRecovery := c.session != nil && c.session.Recovery
	c.mu.Unlock()

	if !onResetForm || !hasRecovery {
		c.notify(ErrNoRecoverySession.Error())
		return ErrNoRecoverySession
	}

	established, err := c.api.UpdatePassword(ctx, newPassword)
	if err != nil {
		c.notify(err.Error())
		return err
	}
	c.setSession(established)

	c.SetMode(ModeLogin)
	c.notify("Password updated. You are signed in.")
	return nil
}

// Logout signs out and returns to the login form.
func (c *Controller) Logout(ctx context.Context) error {
	release, err := c.acquire("logout")
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.Logout(ctx); err != nil {
		c.notify(err.Error())
		return err
	}
	c.setSession(nil)
	c.SetMode(ModeLogin)
	return nil
}

// Close unsubscribes from session events.
func (c *Controller) Close() {
	c.mu.Lock()
	select {
	case <-c.stopped:
		c.mu.Unlock()
		return
	default:
	}
	close(c.stopped)
	c.mu.Unlock()

	c.unsub()
	c.finished.Wait()
}

// setSession records the session synchronously; the mirror goroutine will
// repeat the same value when the client event arrives.
func (c *Controller) setSession(session *client.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// acquire marks op busy and returns its release func, or ErrBusy when the
// same op is already in flight.
func (c *Controller) acquire(op string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[op] {
		return nil, ErrBusy
	}
	c.busy[op] = true
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.busy, op)
	}, nil
}
