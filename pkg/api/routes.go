// Package api exposes the extraction core over HTTP. It is caller plumbing
// only; the engine stays unaware of it.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/history"
	"github.com/unzipr/unzipr/pkg/worker"
)

type API struct {
	store   *worker.Store
	history *history.Service
	logger  zerolog.Logger
}

func New(store *worker.Store, hist *history.Service) *API {
	return &API{
		store:   store,
		history: hist,
		logger:  logger.New("api"),
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/version", a.handleVersion)
	r.Post("/inspect", a.handleInspect)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", a.handleTasksList)
		r.Post("/", a.handleTaskCreate)
		r.Post("/batch", a.handleBatchCreate)
		r.Route("/batch/{bid}", func(r chi.Router) {
			r.Post("/pause", a.handleBatchPause)
			r.Post("/resume", a.handleBatchResume)
			r.Post("/cancel", a.handleBatchCancel)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleTaskGet)
			r.Delete("/", a.handleTaskDelete)
			r.Post("/pause", a.handleTaskPause)
			r.Post("/resume", a.handleTaskResume)
			r.Post("/cancel", a.handleTaskCancel)
		})
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", a.handleHistoryList)
		r.Delete("/", a.handleHistoryClear)
	})

	return r
}
