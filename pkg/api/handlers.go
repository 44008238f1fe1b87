package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unzipr/unzipr/internal/config"
	"github.com/unzipr/unzipr/internal/request"
	"github.com/unzipr/unzipr/pkg/archive"
	"github.com/unzipr/unzipr/pkg/task"
	"github.com/unzipr/unzipr/pkg/version"
)

type inspectRequest struct {
	Path string `json:"path"`
}

type inspectResponse struct {
	*archive.Info
	CompressionRatio float64 `json:"compression_ratio"`
	BombWarning      bool    `json:"bomb_warning"`
}

type createTaskRequest struct {
	ArchivePath         string `json:"archive_path"`
	Destination         string `json:"destination,omitempty"`
	ConflictPolicy      string `json:"conflict_policy,omitempty"`
	RootFolderMode      string `json:"root_folder_mode,omitempty"`
	PreserveTimestamps  *bool  `json:"preserve_timestamps,omitempty"`
	PreservePermissions *bool  `json:"preserve_permissions,omitempty"`
}

type batchCreateRequest struct {
	Tasks []createTaskRequest `json:"tasks"`
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	request.JSONResponse(w, version.GetInfo(), http.StatusOK)
}

func (a *API) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		request.JSONError(w, "path is required", http.StatusBadRequest)
		return
	}

	info, err := archive.Inspect(req.Path)
	if err != nil {
		request.JSONError(w, err.Error(), http.StatusNotFound)
		return
	}

	cfg := config.Get()
	request.JSONResponse(w, inspectResponse{
		Info:             info,
		CompressionRatio: info.CompressionRatio(),
		BombWarning:      archive.DetectBomb(req.Path, cfg.BombRatio),
	}, http.StatusOK)
}

// buildTask turns a request into a task, filling unset fields from the
// configured defaults.
func (a *API) buildTask(req createTaskRequest) (*task.Task, error) {
	cfg := config.Get()

	destination := req.Destination
	if destination == "" {
		destination = cfg.DefaultDestination
	}

	policyStr := req.ConflictPolicy
	if policyStr == "" {
		policyStr = cfg.ConflictPolicy
	}
	policy, err := task.ParseConflictPolicy(policyStr)
	if err != nil {
		return nil, err
	}

	modeStr := req.RootFolderMode
	if modeStr == "" {
		modeStr = cfg.RootFolderMode
	}
	mode, err := task.ParseRootFolderMode(modeStr)
	if err != nil {
		return nil, err
	}

	opts := task.Options{
		ConflictPolicy:      policy,
		RootFolderMode:      mode,
		PreserveTimestamps:  cfg.PreserveTimestamps,
		PreservePermissions: cfg.PreservePermissions,
	}
	if req.PreserveTimestamps != nil {
		opts.PreserveTimestamps = *req.PreserveTimestamps
	}
	if req.PreservePermissions != nil {
		opts.PreservePermissions = *req.PreservePermissions
	}

	return task.New(req.ArchivePath, destination, opts), nil
}

func (a *API) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArchivePath == "" {
		request.JSONError(w, "archive_path is required", http.StatusBadRequest)
		return
	}

	t, err := a.buildTask(req)
	if err != nil {
		request.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.store.Add(t)
	a.logger.Info().Str("task", t.ID()).Str("archive", t.ArchivePath()).Msg("Task created")
	request.JSONResponse(w, t.Snapshot(), http.StatusAccepted)
}

func (a *API) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tasks) == 0 {
		request.JSONError(w, "tasks are required", http.StatusBadRequest)
		return
	}

	tasks := make([]*task.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		if tr.ArchivePath == "" {
			request.JSONError(w, "archive_path is required", http.StatusBadRequest)
			return
		}
		t, err := a.buildTask(tr)
		if err != nil {
			request.JSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		tasks = append(tasks, t)
	}

	b := a.store.AddBatch(tasks)
	snaps := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snaps = append(snaps, t.Snapshot())
	}
	a.logger.Info().Str("batch", b.ID()).Int("tasks", len(tasks)).Msg("Batch created")
	request.JSONResponse(w, map[string]interface{}{
		"batch_id": b.ID(),
		"tasks":    snaps,
	}, http.StatusAccepted)
}

func (a *API) handleBatchPause(w http.ResponseWriter, r *http.Request) {
	b, ok := a.store.Batch(chi.URLParam(r, "bid"))
	if !ok {
		request.JSONError(w, "unknown batch", http.StatusNotFound)
		return
	}
	b.PauseAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBatchResume(w http.ResponseWriter, r *http.Request) {
	b, ok := a.store.Batch(chi.URLParam(r, "bid"))
	if !ok {
		request.JSONError(w, "unknown batch", http.StatusNotFound)
		return
	}
	b.ResumeAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	b, ok := a.store.Batch(chi.URLParam(r, "bid"))
	if !ok {
		request.JSONError(w, "unknown batch", http.StatusNotFound)
		return
	}
	b.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTasksList(w http.ResponseWriter, r *http.Request) {
	request.JSONResponse(w, a.store.List(), http.StatusOK)
}

func (a *API) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, stats, ok := a.store.Get(id)
	if !ok {
		request.JSONError(w, "unknown task", http.StatusNotFound)
		return
	}
	request.JSONResponse(w, map[string]interface{}{
		"task":  snap,
		"stats": stats,
	}, http.StatusOK)
}

func (a *API) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Remove(chi.URLParam(r, "id")); err != nil {
		request.JSONError(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskPause(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Pause(chi.URLParam(r, "id")); err != nil {
		request.JSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskResume(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Resume(chi.URLParam(r, "id")); err != nil {
		request.JSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Cancel(chi.URLParam(r, "id")); err != nil {
		request.JSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	request.JSONResponse(w, a.history.Recent(count), http.StatusOK)
}

func (a *API) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	a.history.Clear()
	w.WriteHeader(http.StatusNoContent)
}
