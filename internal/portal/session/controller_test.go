package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussieverify/aussieverify/internal/portal/client"
	"github.com/aussieverify/aussieverify/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a scriptable backend for controller tests.
type fakeAPI struct {
	mu sync.Mutex

	registerSession *client.Session
	registerErr     error
	loginSession    *client.Session
	loginErr        error
	recoverySession *client.Session
	recoveryErr     error
	resetErr        error

	loginGate chan struct{}

	savedProfiles []types.Profile
	resetMails    []string
}

func (f *fakeAPI) Register(ctx context.Context, email, password string) (*client.Session, error) {
	return f.registerSession, f.registerErr
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*client.Session, error) {
	if f.loginGate != nil {
		<-f.loginGate
	}
	return f.loginSession, f.loginErr
}

func (f *fakeAPI) Logout(ctx context.Context) error { return nil }

func (f *fakeAPI) CurrentSession() *client.Session { return nil }

func (f *fakeAPI) SendReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetMails = append(f.resetMails, email)
	return nil
}

func (f *fakeAPI) ExchangeRecovery(ctx context.Context, token string) (*client.Session, error) {
	return f.recoverySession, f.recoveryErr
}

func (f *fakeAPI) UpdatePassword(ctx context.Context, newPassword string) (*client.Session, error) {
	return &client.Session{Token: "fresh", UserID: "user-1"}, nil
}

func (f *fakeAPI) Profile(ctx context.Context) (types.Profile, error) {
	return types.Profile{}, nil
}

func (f *fakeAPI) SaveProfile(ctx context.Context, profile types.Profile) (types.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedProfiles = append(f.savedProfiles, profile)
	return profile, nil
}

func (f *fakeAPI) Verifications(ctx context.Context) ([]types.Verification, error) {
	return nil, nil
}

func (f *fakeAPI) AddVerification(ctx context.Context, draft types.VerificationDraft) (types.Verification, error) {
	return types.Verification{}, nil
}

func (f *fakeAPI) DeleteVerification(ctx context.Context, id string) error { return nil }

func (f *fakeAPI) Export(ctx context.Context) (types.ExportDocument, error) {
	return types.ExportDocument{}, nil
}

func (f *fakeAPI) SubscribeSessions() (<-chan client.SessionEvent, func()) {
	ch := make(chan client.SessionEvent)
	return ch, func() {}
}

func (f *fakeAPI) Close() error { return nil }

type noticeRecorder struct {
	mu      sync.Mutex
	notices []string
}

func (n *noticeRecorder) record(notice string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

func TestInitialModeIsLogin(t *testing.T) {
	ctrl := NewController(context.Background(), &fakeAPI{}, StartParams{}, nil)
	defer ctrl.Close()

	assert.Equal(t, ModeLogin, ctrl.Mode())
	assert.Nil(t, ctrl.Session())
}

func TestRecoveryMarkerOpensResetForm(t *testing.T) {
	api := &fakeAPI{
		recoverySession: &client.Session{Token: "tok", UserID: "user-1", Recovery: true},
	}
	ctrl := NewController(context.Background(), api, StartParams{Type: RecoveryMarker, Token: "emailed"}, nil)
	defer ctrl.Close()

	assert.Equal(t, ModeReset, ctrl.Mode())
	require.NotNil(t, ctrl.Session())
	assert.True(t, ctrl.Session().Recovery)
}

func TestRecoveryExchangeFailureFallsBackToLogin(t *testing.T) {
	api := &fakeAPI{recoveryErr: errors.New("recovery link is invalid or has expired")}
	notices := &noticeRecorder{}

	ctrl := NewController(context.Background(), api, StartParams{Type: RecoveryMarker, Token: "stale"}, notices.record)
	defer ctrl.Close()

	assert.Equal(t, ModeLogin, ctrl.Mode())
	assert.Contains(t, notices.all(), "recovery link is invalid or has expired")
}

func TestUpdatePasswordWithoutRecoverySession(t *testing.T) {
	ctrl := NewController(context.Background(), &fakeAPI{}, StartParams{}, nil)
	defer ctrl.Close()

	ctrl.SetMode(ModeReset)
	err := ctrl.UpdatePassword(context.Background(), "hunter2!")

	assert.ErrorIs(t, err, ErrNoRecoverySession)
	assert.EqualError(t, err, "no recovery session — use the email link again")
}

func TestRegisterWithoutSessionReturnsToLoginWithNotice(t *testing.T) {
	api := &fakeAPI{}
	notices := &noticeRecorder{}

	ctrl := NewController(context.Background(), api, StartParams{}, notices.record)
	defer ctrl.Close()
	ctrl.SetMode(ModeRegister)

	require.NoError(t, ctrl.Register(context.Background(), "new@example.com", "hunter2!"))

	assert.Equal(t, ModeLogin, ctrl.Mode())
	assert.Nil(t, ctrl.Session())
	assert.Empty(t, api.savedProfiles)
	assert.Contains(t, notices.all(), "Check your inbox to confirm your email, then login.")
}

func TestRegisterWithSessionWritesDefaultProfile(t *testing.T) {
	api := &fakeAPI{
		registerSession: &client.Session{Token: "tok", UserID: "user-1", Email: "new@example.com"},
	}
	ctrl := NewController(context.Background(), api, StartParams{}, nil)
	defer ctrl.Close()

	require.NoError(t, ctrl.Register(context.Background(), "new@example.com", "hunter2!"))

	require.NotNil(t, ctrl.Session())
	require.Len(t, api.savedProfiles, 1)
	assert.Equal(t, "user-1", api.savedProfiles[0].UserID)
	assert.Equal(t, types.DefaultRegion, api.savedProfiles[0].Region)
}

func TestSendResetReturnsToLoginWithNotice(t *testing.T) {
	api := &fakeAPI{}
	notices := &noticeRecorder{}

	ctrl := NewController(context.Background(), api, StartParams{}, notices.record)
	defer ctrl.Close()
	ctrl.SetMode(ModeForgot)

	require.NoError(t, ctrl.SendReset(context.Background(), "lost@example.com"))

	assert.Equal(t, ModeLogin, ctrl.Mode())
	assert.Nil(t, ctrl.Session())
	assert.Equal(t, []string{"lost@example.com"}, api.resetMails)
	assert.Contains(t, notices.all(), "Check your email for a reset link.")
}

func TestDuplicateSubmissionRejectedWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		loginGate:    gate,
		loginSession: &client.Session{Token: "tok", UserID: "user-1"},
	}
	ctrl := NewController(context.Background(), api, StartParams{}, nil)
	defer ctrl.Close()

	first := make(chan error, 1)
	go func() {
		first <- ctrl.Login(context.Background(), "a@example.com", "pw")
	}()

	require.Eventually(t, func() bool {
		return ctrl.Busy("login")
	}, time.Second, 5*time.Millisecond)

	err := ctrl.Login(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-first)
	assert.False(t, ctrl.Busy("login"))
	require.NotNil(t, ctrl.Session())
}
