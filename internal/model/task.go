// internal/model/task.go
package model

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/metrics"
	"tasks-api/internal/storage"
)

// TaskCollection is the per-tenant collection holding tasks.
const TaskCollection = "tasks"

type Store interface {
	Find(ctx context.Context, tenant, coll string, query storage.Document, page, limit int) (*storage.Page, error)
	Insert(ctx context.Context, tenant, coll string, payload storage.Document) (*storage.InsertResult, error)
}

// Notifier is told about every stored task.
type Notifier interface {
	TaskCreated(ctx context.Context, tenant string, res *storage.InsertResult)
}

type Tasks struct {
	store    Store
	notifier Notifier
	log      logrus.FieldLogger
}

// NewTasks wires the task model. notifier may be nil.
func NewTasks(store Store, notifier Notifier, log logrus.FieldLogger) *Tasks {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tasks{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "tasks"),
	}
}

func (t *Tasks) Create(ctx context.Context, tenant string, doc storage.Document) (*storage.InsertResult, error) {
	const op = "tasks.create"
	if doc == nil {
		return nil, NewError(KindInvalid, op, errors.New("task must be a JSON object"))
	}

	res, err := t.store.Insert(ctx, tenant, TaskCollection, doc)
	if err != nil {
		t.log.WithError(err).WithField("tenant", tenant).Error("failed to insert task")
		return nil, wrap(op, err)
	}

	metrics.TasksCreated.WithLabelValues(tenant).Inc()
	if t.notifier != nil {
		t.notifier.TaskCreated(ctx, tenant, res)
	}
	return res, nil
}

func (t *Tasks) Find(ctx context.Context, tenant string, query storage.Document, page, limit int) (*storage.Page, error) {
	res, err := t.store.Find(ctx, tenant, TaskCollection, query, page, limit)
	if err != nil {
		t.log.WithError(err).WithField("tenant", tenant).Error("failed to find tasks")
		return nil, wrap("tasks.find", err)
	}
	return res, nil
}
