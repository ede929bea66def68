// internal/manager/tenant_manager.go
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/messaging"
	"tasks-api/internal/storage"
)

// Broker is the slice of the RabbitMQ client the manager needs.
type Broker interface {
	DeclareQueue(tenantID string) error
	Publish(tenantID string, body []byte) error
	UpdateQueueDepth(tenantID string)
}

// TenantManager tracks tenants as they appear. Tenants are never
// registered up front; the first stored task brings one into existence.
type TenantManager struct {
	broker Broker
	log    logrus.FieldLogger
	now    func() time.Time

	mu      sync.RWMutex
	tenants map[string]time.Time
}

// NewTenantManager creates a manager. broker may be nil, in which case
// no events are published.
func NewTenantManager(broker Broker, log logrus.FieldLogger) *TenantManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TenantManager{
		broker:  broker,
		log:     log.WithField("component", "tenants"),
		now:     time.Now,
		tenants: make(map[string]time.Time),
	}
}

// Ensure registers tenant and declares its event queue on first sight.
// A failed declaration leaves the tenant unregistered so the next call
// retries it.
func (tm *TenantManager) Ensure(tenant string) error {
	tm.mu.RLock()
	_, ok := tm.tenants[tenant]
	tm.mu.RUnlock()
	if ok {
		return nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.tenants[tenant]; ok {
		return nil
	}

	if tm.broker != nil {
		if err := tm.broker.DeclareQueue(tenant); err != nil {
			return err
		}
	}
	tm.tenants[tenant] = tm.now()
	tm.log.WithField("tenant", tenant).Info("tenant added")
	return nil
}

// TaskCreated publishes a task event. Failures are logged only; the task
// is already stored.
func (tm *TenantManager) TaskCreated(_ context.Context, tenant string, res *storage.InsertResult) {
	log := tm.log.WithField("tenant", tenant)
	if err := tm.Ensure(tenant); err != nil {
		log.WithError(err).Warn("failed to prepare tenant")
		return
	}
	if tm.broker == nil {
		return
	}

	body, err := messaging.TaskEvent{
		Type:       messaging.EventTaskCreated,
		Tenant:     tenant,
		InsertedID: res.InsertedID,
		At:         tm.now().UTC(),
	}.Marshal()
	if err != nil {
		log.WithError(err).Warn("failed to encode task event")
		return
	}
	if err := tm.broker.Publish(tenant, body); err != nil {
		log.WithError(err).Warn("failed to publish task event")
	}
}

// ListTenantIDs returns all tenants seen so far, sorted
func (tm *TenantManager) ListTenantIDs() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	ids := make([]string, 0, len(tm.tenants))
	for id := range tm.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RefreshQueueDepths updates the queue depth gauge of every known tenant.
func (tm *TenantManager) RefreshQueueDepths() {
	if tm.broker == nil {
		return
	}
	for _, id := range tm.ListTenantIDs() {
		tm.broker.UpdateQueueDepth(id)
	}
}
