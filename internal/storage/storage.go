// Package storage is the tenant-scoped data-access layer. Every call
// borrows one pooled driver connection for its duration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/config"
	"tasks-api/internal/pool"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

var (
	// ErrUnavailable wraps failures to obtain a connection.
	ErrUnavailable = errors.New("store unavailable")
	// ErrStore wraps failures reported by the driver.
	ErrStore = errors.New("store operation failed")
)

// Document is a schemaless stored record.
type Document map[string]any

type Cursor struct {
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
}

type Page struct {
	Cursor Cursor     `json:"cursor"`
	Data   []Document `json:"data"`
}

type InsertResult struct {
	InsertedID    any `json:"insertedId"`
	InsertedCount int `json:"insertedCount"`
}

// Conn is one pooled driver connection. Results of Find are ordered by
// descending insertion id.
type Conn interface {
	Find(ctx context.Context, tenant, coll string, filter Document, skip, limit int64) ([]Document, error)
	Insert(ctx context.Context, tenant, coll string, doc Document) (any, error)
	Close(ctx context.Context) error
}

type DB struct {
	pool    *pool.Pool[Conn]
	log     logrus.FieldLogger
	closers []func() error
}

func New(p *pool.Pool[Conn], log logrus.FieldLogger) *DB {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DB{pool: p, log: log.WithField("component", "storage")}
}

// Open builds the driver selected by cfg and a connection pool around it.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*DB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var (
		factory pool.Factory[Conn]
		closers []func() error
	)
	switch cfg.Database.Driver {
	case config.DriverMongo:
		factory = MongoFactory(cfg.MongoURI(), cfg.Pool.ConnectTimeout)
	case config.DriverPostgres:
		pg, err := OpenPostgres(cfg.Database.URI)
		if err != nil {
			return nil, err
		}
		factory = pg
		closers = append(closers, pg.Close)
	case config.DriverMemory:
		factory = NewMemory()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	p := pool.New(ctx, factory, pool.Options{
		Name:           cfg.Database.Driver,
		Min:            cfg.Pool.Min,
		Max:            cfg.Pool.Max,
		ConnectTimeout: cfg.Pool.ConnectTimeout,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	}, log)

	db := New(p, log)
	db.closers = closers
	db.log.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"min":    cfg.Pool.Min,
		"max":    cfg.Pool.Max,
	}).Info("storage pool initialised")
	return db, nil
}

// Find returns one page of tenant's coll matching query. Non-positive page
// and limit fall back to the defaults.
func (db *DB) Find(ctx context.Context, tenant, coll string, query Document, page, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = DefaultPage
	}
	if query == nil {
		query = Document{}
	}
	skip := skipFor(page, limit)

	var docs []Document
	err := db.withConn(ctx, func(c Conn) error {
		var err error
		docs, err = c.Find(ctx, tenant, coll, query, skip, int64(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}

	return &Page{
		Cursor: Cursor{CurrentPage: page, PerPage: limit},
		Data:   docs,
	}, nil
}

// skipFor is (page-1)*limit, saturating at math.MaxInt64.
func skipFor(page, limit int) int64 {
	p, l := int64(page-1), int64(limit)
	if p > math.MaxInt64/l {
		return math.MaxInt64
	}
	return p * l
}

func (db *DB) Insert(ctx context.Context, tenant, coll string, payload Document) (*InsertResult, error) {
	var id any
	err := db.withConn(ctx, func(c Conn) error {
		var err error
		id, err = c.Insert(ctx, tenant, coll, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &InsertResult{InsertedID: id, InsertedCount: 1}, nil
}

// withConn lends fn a pooled connection and always gives it back. A
// connection whose call panicked is discarded and the panic is returned
// as an ErrStore failure.
func (db *DB) withConn(ctx context.Context, fn func(Conn) error) (err error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		db.log.WithError(err).Warn("failed to acquire connection")
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	defer func() {
		if r := recover(); r != nil {
			db.pool.Invalidate(conn)
			db.log.WithField("panic", r).Error("driver call panicked, connection discarded")
			err = fmt.Errorf("%w: driver panic: %v", ErrStore, r)
			return
		}
		db.pool.Release(conn)
	}()

	if err := fn(conn); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (db *DB) Stats() pool.Stats {
	return db.pool.Stats()
}

// Close shuts the pool down and releases driver resources.
func (db *DB) Close() error {
	db.pool.Close()
	var errs []error
	for _, c := range db.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
