package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasks-api/internal/storage"
)

type stubStore struct {
	err      error
	gotColl  string
	gotPage  int
	gotLimit int
}

func (s *stubStore) Find(_ context.Context, _, coll string, _ storage.Document, page, limit int) (*storage.Page, error) {
	s.gotColl, s.gotPage, s.gotLimit = coll, page, limit
	if s.err != nil {
		return nil, s.err
	}
	return &storage.Page{Cursor: storage.Cursor{CurrentPage: page, PerPage: limit}, Data: []storage.Document{}}, nil
}

func (s *stubStore) Insert(_ context.Context, _, coll string, _ storage.Document) (*storage.InsertResult, error) {
	s.gotColl = coll
	if s.err != nil {
		return nil, s.err
	}
	return &storage.InsertResult{InsertedID: 1, InsertedCount: 1}, nil
}

type recordingNotifier struct {
	tenants []string
}

func (r *recordingNotifier) TaskCreated(_ context.Context, tenant string, _ *storage.InsertResult) {
	r.tenants = append(r.tenants, tenant)
}

func newTasks(store Store, n Notifier) *Tasks {
	log, _ := test.NewNullLogger()
	return NewTasks(store, n, log)
}

func TestCreateUsesTaskCollection(t *testing.T) {
	store := &stubStore{}
	notifier := &recordingNotifier{}

	res, err := newTasks(store, notifier).Create(context.Background(), "acme", storage.Document{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)
	assert.Equal(t, TaskCollection, store.gotColl)
	assert.Equal(t, []string{"acme"}, notifier.tenants)
}

func TestCreateRejectsNilDocument(t *testing.T) {
	store := &stubStore{}
	_, err := newTasks(store, nil).Create(context.Background(), "acme", nil)
	assert.Equal(t, KindInvalid, KindOf(err))
	assert.Empty(t, store.gotColl, "store is not called")
}

func TestFindForwardsPaging(t *testing.T) {
	store := &stubStore{}
	page, err := newTasks(store, nil).Find(context.Background(), "acme", nil, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, storage.Cursor{CurrentPage: 2, PerPage: 5}, page.Cursor)
	assert.Equal(t, TaskCollection, store.gotColl)
}

func TestErrorsKeepKindAndCause(t *testing.T) {
	cause := errors.New("E11000 duplicate key")
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"store", fmt.Errorf("%w: %w", storage.ErrStore, cause), KindStore},
		{"unavailable", fmt.Errorf("%w: %w", storage.ErrUnavailable, cause), KindUnavailable},
		{"unknown", cause, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			tasks := newTasks(&stubStore{err: tc.err}, notifier)

			_, err := tasks.Create(context.Background(), "acme", storage.Document{})
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.ErrorIs(t, err, cause)
			assert.Empty(t, notifier.tenants, "failed inserts are not announced")

			_, err = tasks.Find(context.Background(), "acme", nil, 1, 10)
			var me *Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tc.kind, me.Kind)
			assert.Equal(t, "tasks.find", me.Op)
			assert.Contains(t, me.Message(), "duplicate key")
		})
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindInvalid, KindOf(fmt.Errorf("wrapped: %w", NewError(KindInvalid, "op", nil))))
}
