package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "tasks-api/docs"
	"tasks-api/internal/metrics"
	"tasks-api/internal/model"
	"tasks-api/internal/storage"
	"tasks-api/internal/tenant"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, tenant.Middleware, a.accessLog, middleware.Recoverer)

	r.Get("/healthz", a.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		if a.Auth != nil {
			r.Use(a.requireToken)
		}
		r.Post("/tasks", a.CreateTask)
		r.Get("/tasks", a.FindTasks)
	})

	return r
}

// @Summary Create a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param body body object true "Arbitrary task document"
// @Success 201 {object} storage.InsertResult
// @Failure 400 {object} ErrorResponse
// @Router /tasks [post]
func (a *API) CreateTask(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, model.NewError(model.KindInvalid, "tasks.create", err))
		return
	}

	res, err := a.Tasks.Create(r.Context(), tenant.FromContext(r.Context()), doc)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, res)
}

// @Summary List tasks, newest first
// @Tags Tasks
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} storage.Page
// @Failure 400 {object} ErrorResponse
// @Router /tasks [get]
func (a *API) FindTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := positiveInt(q.Get("page"), storage.DefaultPage)
	limit := positiveInt(q.Get("limit"), storage.DefaultLimit)

	res, err := a.Tasks.Find(r.Context(), tenant.FromContext(r.Context()), storage.Document{}, page, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// Health reports liveness and pool usage.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.Pool == nil {
		a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pool": a.Pool.Stats()})
}

// decodeDocument reads exactly one JSON object.
func decodeDocument(body io.Reader) (storage.Document, error) {
	dec := json.NewDecoder(body)
	var doc storage.Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is empty")
		}
		return nil, fmt.Errorf("bad request body: %w", err)
	}
	if doc == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return doc, nil
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
