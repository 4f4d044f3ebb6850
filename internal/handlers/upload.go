package handlers

import (
	"errors"
	"net/http"

	"pairspace-backend/internal/middleware"
	"pairspace-backend/internal/models"
	"pairspace-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and headers
const multipartOverhead = 1 << 20

// UploadHandler handles media upload HTTP requests
type UploadHandler struct {
	mediaService *services.MediaService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(mediaService *services.MediaService) *UploadHandler {
	return &UploadHandler{
		mediaService: mediaService,
	}
}

// Upload handles POST /api/upload/{kind}. The file is read from the
// multipart field named after the kind ("image" or "song").
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	couple := middleware.GetCouple(r.Context())
	if couple == nil {
		respondServiceError(w, r, errMissingAuth())
		return
	}

	kind, ok := services.ParseMediaKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, "Unknown upload kind", CodeNotFound, http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.mediaService.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile(string(kind))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondServiceError(w, r, models.NewValidationError("file exceeds the %d byte limit", h.mediaService.MaxBytes()))
			return
		}
		respondServiceError(w, r, models.NewValidationError("multipart field %q is required", kind))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	result, err := h.mediaService.Upload(r.Context(), couple.CoupleID, kind, header.Filename, contentType, file, header.Size)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("couple_id", couple.CoupleID).
		Str("kind", string(kind)).
		Int64("size", header.Size).
		Str("path", result.FilePath).
		Msg("File uploaded")
	respondJSON(w, http.StatusOK, result)
}

// PresignRequest represents the request body for a direct upload URL
type PresignRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=image song"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
}

// Presign handles POST /api/upload/presign
func (h *UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	couple := middleware.GetCouple(r.Context())
	if couple == nil {
		respondServiceError(w, r, errMissingAuth())
		return
	}

	var req PresignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	kind, _ := services.ParseMediaKind(req.Kind)

	response, err := h.mediaService.Presign(r.Context(), couple.CoupleID, kind, req.Filename, req.ContentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("couple_id", couple.CoupleID).
		Str("filename", req.Filename).
		Msg("Pre-signed URL generated")
	respondJSON(w, http.StatusOK, response)
}
