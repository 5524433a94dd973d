package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/trentonhq/trenton/internal/errors"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/search"
	"github.com/trentonhq/trenton/internal/store"
)

// folderView is the folder representation returned by the API.
type folderView struct {
	ID            int64      `json:"id"`
	Path          string     `json:"path"`
	Modality      string     `json:"modality"`
	IsActive      bool       `json:"is_active"`
	FileCount     int        `json:"file_count"`
	CreatedAt     time.Time  `json:"created_at"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// jobView is the indexing-job representation returned by the API.
type jobView struct {
	ID             int64      `json:"id"`
	Kind           string     `json:"job_type"`
	FolderID       *int64     `json:"folder_id,omitempty"`
	Status         string     `json:"status"`
	TotalFiles     int        `json:"total_files"`
	ProcessedFiles int        `json:"processed_files"`
	FailedFiles    int        `json:"failed_files"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func toJobView(j *store.IndexingJob) jobView {
	return jobView{
		ID:             j.ID,
		Kind:           string(j.Kind),
		FolderID:       j.FolderID,
		Status:         string(j.Status),
		TotalFiles:     j.TotalFiles,
		ProcessedFiles: j.ProcessedFiles,
		FailedFiles:    j.FailedFiles,
		ErrorMessage:   j.ErrorMessage,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// resultView is one ranked search hit.
type resultView struct {
	FileID          int64    `json:"file_id"`
	Path            string   `json:"path"`
	Filename        string   `json:"filename"`
	Modality        string   `json:"modality"`
	SearchModality  string   `json:"search_modality"`
	Score           float64  `json:"score"`
	MimeType        string   `json:"mime_type,omitempty"`
	FileSize        int64    `json:"file_size"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	IsDeleted       bool     `json:"is_deleted"`
}

type searchResponse struct {
	Results   []resultView `json:"results"`
	Total     int          `json:"total"`
	ElapsedMS float64      `json:"elapsed_ms"`
	Warnings  []string     `json:"warnings,omitempty"`
}

func toSearchResponse(resp *search.Response) searchResponse {
	out := searchResponse{
		Results:   make([]resultView, 0, len(resp.Results)),
		Total:     resp.Total,
		ElapsedMS: float64(resp.Elapsed.Microseconds()) / 1000,
		Warnings:  resp.Warnings,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, resultView{
			FileID:          r.File.ID,
			Path:            r.File.Path,
			Filename:        r.File.Filename,
			Modality:        r.File.Modality.String(),
			SearchModality:  r.Modality.String(),
			Score:           r.Score,
			MimeType:        r.File.MimeType,
			FileSize:        r.File.FileSize,
			DurationSeconds: r.File.DurationSeconds,
			IsDeleted:       r.File.IsDeleted,
		})
	}
	return out
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.app.Store.ListFolders(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]folderView, 0, len(folders))
	for _, f := range folders {
		n, err := s.app.Store.CountFilesByFolder(r.Context(), f.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views = append(views, folderView{
			ID:            f.ID,
			Path:          f.Path,
			Modality:      f.Modality.String(),
			IsActive:      f.IsActive,
			FileCount:     n,
			CreatedAt:     f.CreatedAt,
			LastIndexedAt: f.LastIndexedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRegisterFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Modality string `json:"modality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "invalid request body", err)
		return
	}
	if req.Modality == "" {
		req.Modality = media.ModalityAll.String()
	}

	folder, job, err := s.app.RegisterFolder(r.Context(), req.Path, media.Modality(req.Modality))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := struct {
		Folder folderView `json:"folder"`
		Job    *jobView   `json:"job,omitempty"`
	}{
		Folder: folderView{
			ID:        folder.ID,
			Path:      folder.Path,
			Modality:  folder.Modality.String(),
			IsActive:  folder.IsActive,
			CreatedAt: folder.CreatedAt,
		},
	}
	if job != nil {
		v := toJobView(job)
		resp.Job = &v
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDeregisterFolder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.app.DeregisterFolder(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string   `json:"query"`
		QueryType string   `json:"query_type"`
		Modality  []string `json:"modalities"`
		FolderIDs []int64  `json:"folder_ids"`
		TopK      int      `json:"top_k"`
		Threshold float64  `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "invalid request body", err)
		return
	}
	if req.QueryType == "" {
		req.QueryType = string(search.KindText)
	}
	modalities := make([]media.Modality, 0, len(req.Modality))
	for _, m := range req.Modality {
		modalities = append(modalities, media.Modality(m))
	}

	resp, err := s.app.Engine.Search(r.Context(), search.Query{
		Value:      req.Query,
		Kind:       search.Kind(req.QueryType),
		Modalities: modalities,
		FolderIDs:  req.FolderIDs,
		TopK:       req.TopK,
		Threshold:  req.Threshold,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	fileID, _ := strconv.ParseInt(mux.Vars(r)["fileID"], 10, 64)
	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		topK, _ = strconv.Atoi(v)
	}

	resp, err := s.app.Engine.FindSimilar(r.Context(), fileID, topK, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

func (s *Server) handleTriggerIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID    *int64 `json:"folder_id"`
		Incremental bool   `json:"incremental"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, r, "invalid request body", err)
			return
		}
	}
	kind := store.JobKindFullScan
	if req.Incremental {
		kind = store.JobKindIncremental
	}

	var job *store.IndexingJob
	var err error
	if req.FolderID != nil {
		job, err = s.app.Orchestrator.ScanFolderAsync(r.Context(), *req.FolderID, kind)
	} else {
		job, err = s.app.Orchestrator.ScanAllAsync(r.Context(), kind)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobView(job))
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	jobs, err := s.app.Store.ListRecentJobs(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, toJobView(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	job, err := s.app.Store.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job == nil {
		s.writeError(w, r, errors.NotFound(fmt.Sprintf("job %d not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.app.Store.DB().PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.CollectStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
