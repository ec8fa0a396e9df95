package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/provider"
)

type fakeGateway struct {
	createCalls  int
	deleteCalls  int
	logoutCalls  int
	restartCalls int
	pairingCalls int
	stateCalls   int

	createErr   error
	createDesc  *provider.Descriptor
	pairingErr  error
	pairing     *provider.Pairing
	pairingLate *provider.Pairing // returned once pairingCalls > 1
	stateErr    error
	state       *provider.StateInfo
	deleteErr   error
	logoutErr   error
	restartErr  error
}

func (f *fakeGateway) Create(_ context.Context, name, phone string) (*provider.Descriptor, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createDesc != nil {
		return f.createDesc, nil
	}
	return &provider.Descriptor{InstanceID: name, ApiKey: "key", State: "created"}, nil
}

func (f *fakeGateway) State(_ context.Context, _ string) (*provider.StateInfo, error) {
	f.stateCalls++
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if f.state != nil {
		return f.state, nil
	}
	return &provider.StateInfo{Status: domain.SessionUnknown}, nil
}

func (f *fakeGateway) Pairing(_ context.Context, _ string) (*provider.Pairing, error) {
	f.pairingCalls++
	if f.pairingLate != nil && f.pairingCalls > 1 {
		return f.pairingLate, nil
	}
	if f.pairingErr != nil {
		return nil, f.pairingErr
	}
	if f.pairing != nil {
		return f.pairing, nil
	}
	return nil, provider.ErrNotAvailable
}

func (f *fakeGateway) Logout(_ context.Context, _ string) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeGateway) Delete(_ context.Context, _ string) error {
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeGateway) Restart(_ context.Context, _ string) error {
	f.restartCalls++
	return f.restartErr
}

func newTestManager(t *testing.T, gw *fakeGateway) (*Manager, Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ChatSession{}))
	repo := NewGormRepository(db)
	m := NewManager(repo, gw, nil)
	m.sleep = func(context.Context, time.Duration) {}
	return m, repo
}

func seedSession(t *testing.T, repo Repository, kind string) *domain.ChatSession {
	t.Helper()
	s := &domain.ChatSession{
		ID:             100,
		TenantID:       1,
		Name:           "support-line",
		Phone:          "628123456789",
		ConnectionKind: kind,
		Status:         domain.SessionUninitialized,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestSetupStoresDescriptor(t *testing.T) {
	gw := &fakeGateway{createDesc: &provider.Descriptor{InstanceID: "inst-9", ApiKey: "sess-key", State: "created"}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	require.NoError(t, m.Setup(context.Background(), s))
	assert.Equal(t, "inst-9", s.ProviderID)
	assert.Equal(t, "sess-key", s.ApiKey)
	assert.Equal(t, domain.SessionCreated, s.Status)

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "inst-9", stored.ProviderID)
}

func TestSetupDerivesOwnAddressFromPhone(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	require.NoError(t, m.Setup(context.Background(), s))
	assert.Equal(t, "628123456789@s.whatsapp.net", s.OwnAddress)

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "628123456789@s.whatsapp.net", stored.OwnAddress)
}

func TestSetupKeepsExplicitOwnAddress(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)
	s.OwnAddress = "628000@s.whatsapp.net"
	require.NoError(t, repo.Update(context.Background(), s))

	require.NoError(t, m.Setup(context.Background(), s))
	assert.Equal(t, "628000@s.whatsapp.net", s.OwnAddress)
}

func TestSetupManualNeverContactsProvider(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindManagedManual)

	err := m.Setup(context.Background(), s)
	assert.ErrorIs(t, err, ErrManualSetup)
	assert.Zero(t, gw.createCalls)

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionManualSetup, stored.Status)
}

func TestSetupProviderErrorSurfaces(t *testing.T) {
	gw := &fakeGateway{createErr: &provider.UnreachableError{Op: "create"}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	err := m.Setup(context.Background(), s)
	require.Error(t, err)
	assert.True(t, provider.IsUnreachable(err))
}

func TestPairingTierOneShortCircuits(t *testing.T) {
	gw := &fakeGateway{pairing: &provider.Pairing{QRImage: "data:image/png;base64,AAA"}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	p, err := m.Pairing(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.Usable())
	assert.Zero(t, gw.stateCalls, "tier two must not run")
	assert.Zero(t, gw.deleteCalls, "tier three must not run")

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPairing, stored.Status)
	assert.NotEmpty(t, stored.PairingImage)
}

func TestPairingTierTwoUsesStateEmbedded(t *testing.T) {
	gw := &fakeGateway{
		pairingErr: provider.ErrNotAvailable,
		state: &provider.StateInfo{
			Status:  domain.SessionPairing,
			Pairing: &provider.Pairing{PairingCode: "ABCD-1234", RawCode: "2@raw"},
		},
	}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	p, err := m.Pairing(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", p.PairingCode)
	assert.Zero(t, gw.deleteCalls, "tier three must not run")
}

func TestPairingTierThreeRecreates(t *testing.T) {
	gw := &fakeGateway{
		pairingErr:  provider.ErrNotAvailable,
		pairingLate: &provider.Pairing{QRImage: "data:image/png;base64,BBB"},
	}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	p, err := m.Pairing(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.Usable())
	assert.Equal(t, 1, gw.deleteCalls)
	assert.Equal(t, 1, gw.createCalls)
	assert.Equal(t, 2, gw.pairingCalls)
}

func TestPairingRecreateSurvivesDeleteFailure(t *testing.T) {
	gw := &fakeGateway{
		pairingErr:  provider.ErrNotAvailable,
		deleteErr:   &provider.RejectedError{Op: "delete", Status: 500},
		pairingLate: &provider.Pairing{QRImage: "data:image/png;base64,CCC"},
	}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	p, err := m.Pairing(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.Usable())
}

func TestPairingExhaustionFails(t *testing.T) {
	gw := &fakeGateway{pairingErr: provider.ErrNotAvailable}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	_, err := m.Pairing(context.Background(), s)
	assert.ErrorIs(t, err, ErrPairingUnavailable)
	assert.Equal(t, 1, gw.deleteCalls, "recreate must have been attempted")
	assert.Equal(t, 1, gw.createCalls)
}

func TestPairingManualRefused(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindManagedManual)

	_, err := m.Pairing(context.Background(), s)
	assert.ErrorIs(t, err, ErrManualSetup)
	assert.Zero(t, gw.pairingCalls)
}

func TestReconcileStatusMapsProviderState(t *testing.T) {
	gw := &fakeGateway{state: &provider.StateInfo{Status: domain.SessionConnected}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	m.ReconcileStatus(context.Background(), s)
	assert.Equal(t, domain.SessionConnected, s.Status)

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConnected, stored.Status)
}

func TestReconcileStatusGatewayErrorYieldsUnknown(t *testing.T) {
	gw := &fakeGateway{stateErr: &provider.UnreachableError{Op: "state"}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)
	s.Status = domain.SessionConnected

	m.ReconcileStatus(context.Background(), s)
	assert.Equal(t, domain.SessionUnknown, s.Status)
}

func TestReconcileStatusSkipsManual(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindManagedManual)

	m.ReconcileStatus(context.Background(), s)
	assert.Zero(t, gw.stateCalls)
}

func TestTeardownSwallowsProviderFailures(t *testing.T) {
	gw := &fakeGateway{
		logoutErr: &provider.UnreachableError{Op: "logout"},
		deleteErr: &provider.RejectedError{Op: "delete", Status: 500},
	}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	require.NoError(t, m.Teardown(context.Background(), s))
	assert.Equal(t, 1, gw.logoutCalls)
	assert.Equal(t, 1, gw.deleteCalls)

	_, err := repo.GetByID(context.Background(), s.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTeardownManualSkipsProvider(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindManagedManual)

	require.NoError(t, m.Teardown(context.Background(), s))
	assert.Zero(t, gw.logoutCalls)
	assert.Zero(t, gw.deleteCalls)
}

func TestLogoutKeepsRecordAndDropsStatus(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	require.NoError(t, m.Logout(context.Background(), s))
	assert.Equal(t, 1, gw.logoutCalls)
	assert.Equal(t, domain.SessionDisconnected, s.Status)

	stored, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionDisconnected, stored.Status)
}

func TestLogoutSurfacesProviderError(t *testing.T) {
	gw := &fakeGateway{logoutErr: &provider.UnreachableError{Op: "logout"}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	err := m.Logout(context.Background(), s)
	require.Error(t, err)
	assert.True(t, provider.IsUnreachable(err))
}

func TestRestartSurfacesErrors(t *testing.T) {
	gw := &fakeGateway{restartErr: &provider.RejectedError{Op: "restart", Status: 500}}
	m, repo := newTestManager(t, gw)
	s := seedSession(t, repo, domain.KindStandard)

	err := m.Restart(context.Background(), s)
	require.Error(t, err)
	assert.True(t, provider.IsRejected(err))
}

func TestListPagination(t *testing.T) {
	_, repo := newTestManager(t, &fakeGateway{})
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, &domain.ChatSession{
			ID: i, TenantID: 1, Name: "s", ConnectionKind: domain.KindStandard,
		}))
	}

	page, total, err := repo.List(ctx, nil, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 3)
}
