package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"eeia/internal/domain"
	"eeia/internal/offlinequeue"
	"eeia/internal/policy"
	"eeia/internal/security"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/platform/audit"
	"eeia/pkg/platform/circuit"
)

//go:generate mockgen -source=admin.go -destination=mocks/admin_mocks.go -package=mocks QueueInspector,Drainer

// QueueInspector is the read/maintenance side of the offline queue.
type QueueInspector interface {
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Backend() string
}

// Drainer runs one redelivery pass.
type Drainer interface {
	DrainOnce(ctx context.Context) (offlinequeue.DrainResult, error)
}

// KeyRegistration is an operator request to register a device key. An empty
// Secret asks the server to generate one.
type KeyRegistration struct {
	DeviceID  string
	KeyID     string
	Secret    string
	Algorithm string
}

// RegisteredKey is the outcome of RegisterKey. GeneratedSecret is only set
// when the server minted the secret and is shown exactly once.
type RegisteredKey struct {
	Key             security.DeviceKey
	GeneratedSecret string
}

// QueueStatus summarizes the offline queue and downstream health.
type QueueStatus struct {
	Backend      string
	Depth        int
	OpenBreakers []string
}

// Admin applies operator changes to the in-memory registries and the queue,
// emitting an audit event for each.
type Admin struct {
	policies *policy.Registry
	keys     security.KeyRegistry
	queue    QueueInspector
	drainer  Drainer
	breakers *circuit.Set
	audit    audit.Publisher
	logger   *slog.Logger
}

// AdminOption configures Admin.
type AdminOption func(*Admin)

func WithDrainer(d Drainer) AdminOption {
	return func(a *Admin) { a.drainer = d }
}

func WithAdminBreakers(set *circuit.Set) AdminOption {
	return func(a *Admin) { a.breakers = set }
}

func WithAdminAudit(p audit.Publisher) AdminOption {
	return func(a *Admin) {
		if p != nil {
			a.audit = p
		}
	}
}

func WithAdminLogger(logger *slog.Logger) AdminOption {
	return func(a *Admin) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdmin builds the operator service.
func NewAdmin(policies *policy.Registry, keys security.KeyRegistry, queue QueueInspector, opts ...AdminOption) (*Admin, error) {
	if policies == nil || keys == nil || queue == nil {
		return nil, fmt.Errorf("policies, keys and queue are required")
	}
	a := &Admin{
		policies: policies,
		keys:     keys,
		queue:    queue,
		audit:    audit.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// UpsertPolicy replaces or appends p. A replaced policy moves to the end of
// the match order.
func (a *Admin) UpsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	if err := p.Validate(); err != nil {
		return domain.Policy{}, err
	}
	a.policies.Upsert(p)
	a.logger.InfoContext(ctx, "policy upserted", "policy_id", p.ID, "position", a.policies.Len()-1)
	a.emit(ctx, adminEvent(ctx, audit.EventPolicyUpserted, p.ID, ""))
	return p, nil
}

// Policies lists policies in match order.
func (a *Admin) Policies(_ context.Context) []domain.Policy {
	return a.policies.All()
}

// RemovePolicy deletes a policy by id.
func (a *Admin) RemovePolicy(ctx context.Context, id string) error {
	if _, ok := a.policies.Get(id); !ok {
		return dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	a.policies.Remove(id)
	a.logger.InfoContext(ctx, "policy removed", "policy_id", id)
	a.emit(ctx, adminEvent(ctx, audit.EventPolicyRemoved, id, ""))
	return nil
}

// RegisterKey adds or replaces a device key.
func (a *Admin) RegisterKey(ctx context.Context, reg KeyRegistration) (RegisteredKey, error) {
	var out RegisteredKey
	secret := reg.Secret
	if secret == "" {
		generated, err := security.GenerateSecret()
		if err != nil {
			return RegisteredKey{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate device secret")
		}
		secret = generated
		out.GeneratedSecret = generated
	}
	key := security.NewDeviceKey(reg.DeviceID, reg.KeyID, []byte(secret))
	if reg.Algorithm != "" {
		key.Algorithm = reg.Algorithm
	}
	if err := a.keys.Register(key); err != nil {
		return RegisteredKey{}, err
	}
	out.Key = key
	a.logger.InfoContext(ctx, "device key registered", "key", key)
	a.emit(ctx, adminEvent(ctx, audit.EventKeyRegistered, key.DeviceID, "key_id:"+key.KeyID))
	return out, nil
}

// RevokeKey removes or deactivates a key depending on the registry variant.
func (a *Admin) RevokeKey(ctx context.Context, deviceID, keyID string) error {
	if !a.keys.Revoke(deviceID, keyID) {
		return dErrors.New(dErrors.CodeNotFound, "device key not found")
	}
	a.logger.InfoContext(ctx, "device key revoked", "device_id", deviceID, "key_id", keyID)
	a.emit(ctx, adminEvent(ctx, audit.EventKeyRevoked, deviceID, "key_id:"+keyID))
	return nil
}

// QueueStatus reports queue depth and open breakers.
func (a *Admin) QueueStatus(ctx context.Context) (QueueStatus, error) {
	depth, err := a.queue.Count(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	status := QueueStatus{Backend: a.queue.Backend(), Depth: depth, OpenBreakers: []string{}}
	if a.breakers != nil {
		status.OpenBreakers = a.breakers.Open()
		slices.Sort(status.OpenBreakers)
	}
	return status, nil
}

// Drain runs one redelivery pass on demand.
func (a *Admin) Drain(ctx context.Context) (offlinequeue.DrainResult, error) {
	if a.drainer == nil {
		return offlinequeue.DrainResult{}, dErrors.New(dErrors.CodeConflict, "redelivery is not configured")
	}
	res, err := a.drainer.DrainOnce(ctx)
	if err != nil {
		return res, err
	}
	a.emit(ctx, adminEvent(ctx, audit.EventQueueDrained, a.queue.Backend(),
		fmt.Sprintf("delivered=%d failed=%d remaining=%d", res.Delivered, res.Failed, res.Remaining)))
	return res, nil
}

// ClearQueue drops every queued packet.
func (a *Admin) ClearQueue(ctx context.Context) error {
	if err := a.queue.Clear(ctx); err != nil {
		return err
	}
	a.logger.WarnContext(ctx, "offline queue cleared", "backend", a.queue.Backend())
	ev := adminEvent(ctx, audit.EventQueueCleared, a.queue.Backend(), "")
	ev.Severity = audit.SeverityWarning
	a.emit(ctx, ev)
	return nil
}

func (a *Admin) emit(ctx context.Context, e audit.Event) {
	if err := a.audit.Emit(ctx, e); err != nil {
		a.logger.WarnContext(ctx, "failed to emit audit event", "action", e.Action, "error", err)
	}
}
