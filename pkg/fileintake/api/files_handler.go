// Package api exposes the file intake service over HTTP. Handlers stay
// thin: parse, delegate, translate errors. Authentication happens upstream;
// the owner identity arrives in the X-Owner-ID header set by the gateway.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

const ownerHeader = "X-Owner-ID"

// maxMultipartMemory bounds the in-memory part of multipart parsing; larger
// files spill to temp files.
const maxMultipartMemory = 10 << 20

// FilesHandler handles the file intake API endpoints.
type FilesHandler struct {
	service fileintake.Service
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(service fileintake.Service) *FilesHandler {
	return &FilesHandler{service: service}
}

// Routes returns the router for files endpoints.
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/stats", h.CategoryStats)
	r.Post("/bulk/category", h.BulkSetCategory)
	r.Route("/{file_id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Get("/download", h.Download)
		r.Get("/thumbnail", h.Thumbnail)
		r.Patch("/name", h.Rename)
		r.Put("/category", h.SetCategory)
		r.Post("/restore", h.Restore)
	})
	return r
}

func (h *FilesHandler) owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, err := uuid.Parse(r.Header.Get(ownerHeader))
	if err != nil {
		http.Error(w, "missing or invalid "+ownerHeader+" header", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return ownerID, true
}

func (h *FilesHandler) fileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "file_id"))
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// ownedRecord loads the record and enforces that it belongs to the caller.
// Foreign records are reported as not found, never as forbidden.
func (h *FilesHandler) ownedRecord(w http.ResponseWriter, r *http.Request) (*fileintake.FileRecord, bool) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.fileID(w, r)
	if !ok {
		return nil, false
	}

	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if record.OwnerID != ownerID {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil, false
	}
	return record, true
}

// Upload accepts a multipart form with a "file" part and an optional
// "extract_text" boolean field.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	extractText, _ := strconv.ParseBool(r.FormValue("extract_text"))

	record, err := h.service.Upload(r.Context(), fileintake.UploadRequest{
		OwnerID:      ownerID,
		Data:         data,
		DeclaredName: header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		ExtractText:  extractText,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var filters fileintake.FileListFilters
	if v := r.URL.Query().Get("category"); v != "" {
		category := fileintake.Category(v)
		if !category.Valid() {
			http.Error(w, "invalid category", http.StatusBadRequest)
			return
		}
		filters.Category = &category
	}
	filters.IncludeDeleted, _ = strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filters.Limit = &limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filters.Offset = &offset
		}
	}

	records, err := h.service.List(r.Context(), fileintake.ListRequest{
		OwnerID: ownerID,
		Filters: filters,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*fileintake.FileRecord{}
	}
	render.JSON(w, r, records)
}

func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, record)
}

func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	reader, err := h.service.Download(r.Context(), record.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", record.MediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+record.DisplayName+`"`)
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("failed streaming download", "file_id", record.ID, "error", err)
	}
}

func (h *FilesHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	reader, err := h.service.DownloadThumbnail(r.Context(), record.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/png")
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("failed streaming thumbnail", "file_id", record.ID, "error", err)
	}
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.service.Rename(r.Context(), fileintake.RenameRequest{
		FileID:  record.ID,
		ActorID: record.OwnerID,
		NewName: req.Name,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.fileID(w, r)
	if !ok {
		return
	}

	// Lookup includes soft-deleted records so a permanent delete can purge
	// an already soft-deleted file.
	record, err := h.service.AdminGet(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if record.OwnerID != ownerID {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	permanent, _ := strconv.ParseBool(r.URL.Query().Get("permanent"))
	err = h.service.Delete(r.Context(), fileintake.DeleteRequest{
		FileID:    id,
		ActorID:   ownerID,
		Permanent: permanent,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FilesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.fileID(w, r)
	if !ok {
		return
	}

	record, err := h.service.AdminGet(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if record.OwnerID != ownerID {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	if err := h.service.Restore(r.Context(), id, ownerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setCategoryRequest struct {
	Category string `json:"category"`
}

func (h *FilesHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	var req setCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.SetCategory(r.Context(), fileintake.SetCategoryRequest{
		FileID:   record.ID,
		ActorID:  record.OwnerID,
		Category: fileintake.Category(req.Category),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkCategoryRequest struct {
	FileIDs  []uuid.UUID `json:"file_ids"`
	Category string      `json:"category"`
}

func (h *FilesHandler) BulkSetCategory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req bulkCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.FileIDs) == 0 {
		http.Error(w, "file_ids is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.BulkSetCategory(r.Context(), fileintake.BulkSetCategoryRequest{
		FileIDs:  req.FileIDs,
		OwnerID:  ownerID,
		ActorID:  ownerID,
		Category: fileintake.Category(req.Category),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (h *FilesHandler) CategoryStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	stats, err := h.service.CategoryStats(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// writeError translates service errors into HTTP status codes.
func (h *FilesHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *fileintake.ValidationError
	switch {
	case errors.As(err, &verr):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{
			"error":  string(verr.Reason),
			"detail": verr.Detail,
		})
	case errors.Is(err, fileintake.ErrFileNotFound),
		errors.Is(err, fileintake.ErrObjectNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
	case errors.Is(err, fileintake.ErrInvalidCategory):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
