package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// JobFeed upgrades an authorized request to the live job event stream
type JobFeed interface {
	HandleConnection(w http.ResponseWriter, r *http.Request, subject, factoryID string)
}

type PortalHandler struct {
	factoryService inbound.FactoryService
	jobService     inbound.JobService
	jobFeed        JobFeed
	maxUpload      int64
	logger         outbound.Logger
}

type NewJobRequest struct {
	Factory string `json:"factory"`
}

type SubmitFieldsResponse struct {
	Job    *model.Job           `json:"job"`
	Ready  bool                 `json:"ready"`
	Issues []inbound.FieldIssue `json:"issues"`
}

type MarkStatusRequest struct {
	Status model.JobStatus `json:"status"`
}

type PurgeRequest struct {
	Factory string          `json:"factory"`
	Status  model.JobStatus `json:"status"`
}

// NewPortalHandler builds the factory and job endpoints; jobFeed may be nil
func NewPortalHandler(
	factoryService inbound.FactoryService,
	jobService inbound.JobService,
	jobFeed JobFeed,
	maxUploadBytes int64,
	logger outbound.Logger,
) *PortalHandler {
	return &PortalHandler{
		factoryService: factoryService,
		jobService:     jobService,
		jobFeed:        jobFeed,
		maxUpload:      maxUploadBytes,
		logger:         logger,
	}
}

func (h *PortalHandler) ListFactories(w http.ResponseWriter, r *http.Request) {
	factories, err := h.factoryService.ListFactories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"factories": factories})
}

func (h *PortalHandler) GetFactory(w http.ResponseWriter, r *http.Request) {
	factory, err := h.factoryService.GetFactory(r.Context(), mux.Vars(r)["factory"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, factory)
}

func (h *PortalHandler) CoverImage(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.factoryService.OpenCoverImage(r.Context(), mux.Vars(r)["factory"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("Cover image copy interrupted", "error", err)
	}
}

func (h *PortalHandler) NewJob(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req NewJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	job, err := h.jobService.NewJob(r.Context(), principal.Username, req.Factory)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *PortalHandler) ListMyJobs(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	jobs, err := h.jobService.ListMyJobs(r.Context(), principal.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *PortalHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	job, err := h.jobService.GetJob(r.Context(), principal.Username, mux.Vars(r)["job"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// SubmitFields answers 200 with the issues list, ready is true once the form is complete
func (h *PortalHandler) SubmitFields(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		badRequest(w, "fields must be a JSON object of strings")
		return
	}

	job, issues, err := h.jobService.SubmitFields(r.Context(), principal.Username, mux.Vars(r)["job"], fields)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if issues == nil {
		issues = []inbound.FieldIssue{}
	}
	writeJSON(w, http.StatusOK, SubmitFieldsResponse{Job: job, Ready: len(issues) == 0, Issues: issues})
}

// UploadFile takes the multipart field "file"
func (h *PortalHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Detail: "file too large", Kind: "too_large"})
			return
		}
		badRequest(w, "missing multipart file field \"file\"")
		return
	}
	defer file.Close()

	job, err := h.jobService.UploadFile(r.Context(), principal.Username, mux.Vars(r)["job"], header.Filename, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *PortalHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	rc, name, err := h.jobService.OpenJobFile(r.Context(), principal.Username, mux.Vars(r)["job"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("Job file copy interrupted", "error", err)
	}
}

func (h *PortalHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.jobService.DeleteJob(r.Context(), principal.Username, mux.Vars(r)["job"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Job deleted"})
}

// ListJobs is the admin listing, ?factory= defaults to every factory
func (h *PortalHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	factory := r.URL.Query().Get("factory")
	if factory == "" {
		factory = model.AllJobs
	}

	jobs, err := h.jobService.ListJobs(r.Context(), principal.Username, factory)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *PortalHandler) MarkStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req MarkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	job, err := h.jobService.MarkStatus(r.Context(), principal.Username, mux.Vars(r)["job"], req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *PortalHandler) PurgeJobs(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Factory == "" {
		req.Factory = model.AllJobs
	}

	purged, err := h.jobService.PurgeJobs(r.Context(), principal.Username, req.Factory, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

// JobEvents hands admins over to the websocket feed, ?factory= narrows it
func (h *PortalHandler) JobEvents(w http.ResponseWriter, r *http.Request) {
	if h.jobFeed == nil {
		writeError(w, r, h.logger, model.ErrNotFound)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	h.jobFeed.HandleConnection(w, r, principal.Username, r.URL.Query().Get("factory"))
}
