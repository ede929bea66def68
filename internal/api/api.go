package api

import (
	"context"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/auth"
	"tasks-api/internal/pool"
	"tasks-api/internal/storage"
)

// maxBodyBytes caps POST bodies at 1 MiB.
const maxBodyBytes = 1 << 20

type TaskService interface {
	Create(ctx context.Context, tenant string, doc storage.Document) (*storage.InsertResult, error)
	Find(ctx context.Context, tenant string, query storage.Document, page, limit int) (*storage.Page, error)
}

type PoolStats interface {
	Stats() pool.Stats
}

type API struct {
	Tasks TaskService
	Pool  PoolStats
	// Auth guards the task routes when set.
	Auth *auth.Authenticator
	Log  logrus.FieldLogger
}

func NewAPI(tasks TaskService, stats PoolStats, authn *auth.Authenticator, log logrus.FieldLogger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{
		Tasks: tasks,
		Pool:  stats,
		Auth:  authn,
		Log:   log.WithField("component", "api"),
	}
}
