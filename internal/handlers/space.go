package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pairspace-backend/internal/middleware"
	"pairspace-backend/internal/models"
	"pairspace-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SpaceHandler handles personal space HTTP requests. Routes carrying
// {coupleId} are expected behind middleware.RequireCoupleParam.
type SpaceHandler struct {
	spaceService *services.SpaceService
}

// NewSpaceHandler creates a new personal space handler
func NewSpaceHandler(spaceService *services.SpaceService) *SpaceHandler {
	return &SpaceHandler{
		spaceService: spaceService,
	}
}

// GetOrCreateRequest represents the request body for opening a space
type GetOrCreateRequest struct {
	CoupleID string `json:"coupleId" validate:"required"`
}

// GetOrCreate handles POST /api/personal-space
func (h *SpaceHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	couple := middleware.GetCouple(r.Context())
	if couple == nil {
		respondServiceError(w, r, errMissingAuth())
		return
	}

	var req GetOrCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.CoupleID != couple.CoupleID {
		respondServiceError(w, r, models.ErrForbidden)
		return
	}

	space, created, err := h.spaceService.GetOrCreate(r.Context(), req.CoupleID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, space)
}

// GetSpace handles GET /api/personal-space/{coupleId}
func (h *SpaceHandler) GetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := h.spaceService.Get(r.Context(), chi.URLParam(r, "coupleId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, space)
}

// AddItemRequest represents a new gallery item, song or note. Only the
// fields of the target collection are read.
type AddItemRequest struct {
	AddedBy  string `json:"addedBy" validate:"required,max=100"`
	ImageURL string `json:"imageUrl" validate:"max=2048"`
	Caption  string `json:"caption" validate:"max=1000"`
	Title    string `json:"title" validate:"max=200"`
	Artist   string `json:"artist" validate:"max=200"`
	URL      string `json:"url" validate:"max=2048"`
	Content  string `json:"content" validate:"max=10000"`
}

// AddItem handles POST /api/personal-space/{coupleId}/{kind}
func (h *SpaceHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	kind, ok := itemKind(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	space, err := h.spaceService.AddItem(r.Context(), chi.URLParam(r, "coupleId"), kind, models.ItemInput{
		ImageURL: req.ImageURL,
		Caption:  req.Caption,
		Title:    req.Title,
		Artist:   req.Artist,
		URL:      req.URL,
		Content:  req.Content,
	}, req.AddedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, space)
}

// EditItemRequest represents a partial edit; omitted fields are kept
type EditItemRequest struct {
	EditedBy string  `json:"editedBy" validate:"max=100"`
	ImageURL *string `json:"imageUrl" validate:"omitempty,max=2048"`
	Caption  *string `json:"caption" validate:"omitempty,max=1000"`
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Artist   *string `json:"artist" validate:"omitempty,max=200"`
	URL      *string `json:"url" validate:"omitempty,max=2048"`
	Content  *string `json:"content" validate:"omitempty,max=10000"`
}

// EditItem handles PUT /api/personal-space/{coupleId}/{kind}/{itemId}
func (h *SpaceHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	kind, ok := itemKind(w, r)
	if !ok {
		return
	}

	var req EditItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	space, err := h.spaceService.EditItem(r.Context(), chi.URLParam(r, "coupleId"), kind, chi.URLParam(r, "itemId"), models.ItemPatch{
		ImageURL: req.ImageURL,
		Caption:  req.Caption,
		Title:    req.Title,
		Artist:   req.Artist,
		URL:      req.URL,
		Content:  req.Content,
	}, req.EditedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, space)
}

// DeleteItemRequest optionally names who deleted the item
type DeleteItemRequest struct {
	DeletedBy string `json:"deletedBy" validate:"max=100"`
}

// DeleteItem handles DELETE /api/personal-space/{coupleId}/{kind}/{itemId}
func (h *SpaceHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	kind, ok := itemKind(w, r)
	if !ok {
		return
	}

	var req DeleteItemRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	space, err := h.spaceService.DeleteItem(r.Context(), chi.URLParam(r, "coupleId"), kind, chi.URLParam(r, "itemId"), req.DeletedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, space)
}

// ReactionRequest represents the request body for reacting to an item
type ReactionRequest struct {
	Type    string `json:"type" validate:"required,oneof=HEART SMILE LAUGH WOW SAD"`
	AddedBy string `json:"addedBy" validate:"required,max=100"`
}

// AddReaction handles POST /api/personal-space/{coupleId}/{kind}/{itemId}/reaction
func (h *SpaceHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	kind, ok := itemKind(w, r)
	if !ok {
		return
	}

	var req ReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	space, err := h.spaceService.AddOrReplaceReaction(r.Context(), chi.URLParam(r, "coupleId"), kind, chi.URLParam(r, "itemId"), models.ReactionType(req.Type), req.AddedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, space)
}

// RemoveReactionRequest represents the request body for removing a reaction
type RemoveReactionRequest struct {
	ReactionID string `json:"reactionId" validate:"required"`
}

// RemoveReaction handles DELETE /api/personal-space/{coupleId}/{kind}/{itemId}/reaction
func (h *SpaceHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	kind, ok := itemKind(w, r)
	if !ok {
		return
	}

	var req RemoveReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	space, err := h.spaceService.RemoveReaction(r.Context(), chi.URLParam(r, "coupleId"), kind, chi.URLParam(r, "itemId"), req.ReactionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, space)
}

func itemKind(w http.ResponseWriter, r *http.Request) (models.ItemKind, bool) {
	kind, ok := models.ParseItemKind(chi.URLParam(r, "kind"))
	if !ok {
		log.Debug().Str("kind", chi.URLParam(r, "kind")).Msg("Unknown collection")
		respondError(w, "Unknown collection", CodeNotFound, http.StatusNotFound)
		return "", false
	}
	return kind, true
}

// decodeOptionalJSON is decodeJSON for requests where the body may be empty
func decodeOptionalJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return models.NewValidationError("Invalid request body")
	}
	return validateStruct(dst)
}
