package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/provider"
	"github.com/talkincode/chatgate/pkg/metrics"
)

var (
	// ErrManualSetup means the session is managed manually and no provider
	// call may be made for it.
	ErrManualSetup = errors.New("session requires manual setup")

	// ErrPairingUnavailable means every pairing tier was exhausted without
	// usable credentials.
	ErrPairingUnavailable = errors.New("pairing credentials unavailable")
)

// Settings supplies tunable values from the system settings table.
type Settings interface {
	GetInt64Value(key string, defval int64) int64
}

// Settings keys for the recreate fallback delays.
const (
	SettingRecreateDelayMs = "provider.recreate_delay_ms"
	SettingPairingDelayMs  = "provider.pairing_delay_ms"

	defaultRecreateDelayMs = 1500
	defaultPairingDelayMs  = 2000
)

// GatewayClient is the provider surface the manager drives. Satisfied by
// provider.Client; tests substitute a fake.
type GatewayClient interface {
	Create(ctx context.Context, name, phone string) (*provider.Descriptor, error)
	State(ctx context.Context, name string) (*provider.StateInfo, error)
	Pairing(ctx context.Context, name string) (*provider.Pairing, error)
	Logout(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

// Manager owns the session state machine. Retry and fallback policy against
// the unreliable provider lives here, not in the gateway client.
type Manager struct {
	repo     Repository
	gateway  GatewayClient
	settings Settings // nil means built-in defaults
	sleep    func(ctx context.Context, d time.Duration)
}

func NewManager(repo Repository, gateway GatewayClient, settings Settings) *Manager {
	return &Manager{
		repo:     repo,
		gateway:  gateway,
		settings: settings,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (m *Manager) delay(key string, defval int64) time.Duration {
	v := defval
	if m.settings != nil {
		v = m.settings.GetInt64Value(key, defval)
	}
	return time.Duration(v) * time.Millisecond
}

func (m *Manager) instanceName(s *domain.ChatSession) string {
	return provider.SessionName(s.TenantID, s.ID)
}

// Setup registers the session with the provider and stores the returned
// descriptor. Managed-manual sessions are marked pending and never touch the
// provider.
func (m *Manager) Setup(ctx context.Context, s *domain.ChatSession) error {
	if s.ConnectionKind == domain.KindManagedManual {
		if err := m.repo.UpdateStatus(ctx, s.ID, domain.SessionManualSetup); err != nil {
			return errors.Wrap(err, "mark manual session")
		}
		s.Status = domain.SessionManualSetup
		return ErrManualSetup
	}

	desc, err := m.gateway.Create(ctx, m.instanceName(s), s.Phone)
	if err != nil {
		metrics.IncrCounter(metrics.ProviderErrors, 1)
		return err
	}
	s.ProviderID = desc.InstanceID
	if desc.ApiKey != "" {
		s.ApiKey = desc.ApiKey
	}
	if s.OwnAddress == "" {
		s.OwnAddress = domain.OwnAddressFromPhone(s.Phone)
	}
	s.Status = domain.SessionCreated
	if mapped := provider.MapStatus(desc.State); mapped != domain.SessionUnknown {
		s.Status = mapped
	}
	if err := m.repo.Update(ctx, s); err != nil {
		return errors.Wrap(err, "store session descriptor")
	}
	zap.L().Info("session: provider instance created",
		zap.Int64("session_id", s.ID),
		zap.String("provider_id", s.ProviderID),
		zap.String("status", s.Status))
	return nil
}

// Pairing retrieves pairing credentials through a three-tier fallback:
// live connect info, then state-embedded info, then a full provider-side
// recreate. The first usable result wins; exhaustion is ErrPairingUnavailable.
func (m *Manager) Pairing(ctx context.Context, s *domain.ChatSession) (*provider.Pairing, error) {
	if s.ConnectionKind == domain.KindManagedManual {
		return nil, ErrManualSetup
	}
	name := m.instanceName(s)

	if p, err := m.gateway.Pairing(ctx, name); err == nil && p.Usable() {
		return p, m.storePairing(ctx, s, p)
	} else if err != nil {
		zap.L().Info("session: live pairing unavailable, trying state",
			zap.Int64("session_id", s.ID), zap.Error(err))
	}

	if st, err := m.gateway.State(ctx, name); err == nil && st.Pairing.Usable() {
		return st.Pairing, m.storePairing(ctx, s, st.Pairing)
	}

	p, err := m.recreate(ctx, s, name)
	if err != nil {
		metrics.IncrCounter(metrics.ProviderErrors, 1)
		zap.L().Warn("session: pairing tiers exhausted",
			zap.Int64("session_id", s.ID), zap.Error(err))
		return nil, ErrPairingUnavailable
	}
	return p, m.storePairing(ctx, s, p)
}

// recreate tears the provider-side session down and builds it again. The two
// delays give the provider time to settle its own state between calls.
func (m *Manager) recreate(ctx context.Context, s *domain.ChatSession, name string) (*provider.Pairing, error) {
	if err := m.gateway.Delete(ctx, name); err != nil {
		zap.L().Warn("session: recreate delete failed, continuing",
			zap.Int64("session_id", s.ID), zap.Error(err))
	}
	m.sleep(ctx, m.delay(SettingRecreateDelayMs, defaultRecreateDelayMs))

	desc, err := m.gateway.Create(ctx, name, s.Phone)
	if err != nil {
		return nil, errors.Wrap(err, "recreate instance")
	}
	s.ProviderID = desc.InstanceID
	if desc.ApiKey != "" {
		s.ApiKey = desc.ApiKey
	}
	m.sleep(ctx, m.delay(SettingPairingDelayMs, defaultPairingDelayMs))

	p, err := m.gateway.Pairing(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "pairing after recreate")
	}
	if !p.Usable() {
		return nil, provider.ErrNotAvailable
	}
	return p, nil
}

func (m *Manager) storePairing(ctx context.Context, s *domain.ChatSession, p *provider.Pairing) error {
	s.PairingImage = p.QRImage
	s.PairingCode = p.PairingCode
	s.PairingRaw = p.RawCode
	s.Status = domain.SessionPairing
	if err := m.repo.Update(ctx, s); err != nil {
		return errors.Wrap(err, "store pairing")
	}
	return nil
}

// ReconcileStatus polls the provider and maps its state onto the session.
// Best-effort: any gateway error yields SessionUnknown and never fails the
// caller, so listings stay responsive when the provider is down.
func (m *Manager) ReconcileStatus(ctx context.Context, s *domain.ChatSession) {
	if s.ConnectionKind == domain.KindManagedManual {
		return
	}
	status := domain.SessionUnknown
	st, err := m.gateway.State(ctx, m.instanceName(s))
	if err != nil {
		metrics.IncrCounter(metrics.ProviderErrors, 1)
		zap.L().Info("session: status poll failed",
			zap.Int64("session_id", s.ID), zap.Error(err))
	} else {
		status = st.Status
	}
	if status == s.Status {
		return
	}
	s.Status = status
	if err := m.repo.UpdateStatus(ctx, s.ID, status); err != nil {
		zap.L().Warn("session: status persist failed",
			zap.Int64("session_id", s.ID), zap.Error(err))
	}
}

// Teardown removes the session. Provider-side logout and delete failures are
// logged and swallowed so the local record is always removable.
func (m *Manager) Teardown(ctx context.Context, s *domain.ChatSession) error {
	if s.ConnectionKind != domain.KindManagedManual {
		name := m.instanceName(s)
		if err := m.gateway.Logout(ctx, name); err != nil {
			zap.L().Warn("session: provider logout failed",
				zap.Int64("session_id", s.ID), zap.Error(err))
		}
		if err := m.gateway.Delete(ctx, name); err != nil {
			zap.L().Warn("session: provider delete failed",
				zap.Int64("session_id", s.ID), zap.Error(err))
		}
	}
	if err := m.repo.Delete(ctx, s.ID); err != nil {
		return errors.Wrap(err, "remove session record")
	}
	zap.L().Info("session: removed", zap.Int64("session_id", s.ID))
	return nil
}

// Logout signs the remote device out while keeping the local record. The
// session drops to disconnected; explicit user action, so failures surface.
func (m *Manager) Logout(ctx context.Context, s *domain.ChatSession) error {
	if s.ConnectionKind == domain.KindManagedManual {
		return ErrManualSetup
	}
	if err := m.gateway.Logout(ctx, m.instanceName(s)); err != nil {
		metrics.IncrCounter(metrics.ProviderErrors, 1)
		return err
	}
	s.Status = domain.SessionDisconnected
	if err := m.repo.UpdateStatus(ctx, s.ID, domain.SessionDisconnected); err != nil {
		zap.L().Warn("session: status persist failed",
			zap.Int64("session_id", s.ID), zap.Error(err))
	}
	return nil
}

// Restart asks the provider to restart the connection. Explicit user action,
// so provider failures surface directly.
func (m *Manager) Restart(ctx context.Context, s *domain.ChatSession) error {
	if s.ConnectionKind == domain.KindManagedManual {
		return ErrManualSetup
	}
	if err := m.gateway.Restart(ctx, m.instanceName(s)); err != nil {
		metrics.IncrCounter(metrics.ProviderErrors, 1)
		return err
	}
	return nil
}

// StartReconcileLoop sweeps every session's status on the given interval
// until ctx is cancelled.
func (m *Manager) StartReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions, err := m.repo.All(ctx)
				if err != nil {
					zap.L().Error("session: reconcile sweep query failed", zap.Error(err))
					continue
				}
				for _, s := range sessions {
					m.ReconcileStatus(ctx, s)
				}
			}
		}
	}()
}
