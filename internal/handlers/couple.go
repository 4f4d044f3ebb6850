package handlers

import (
	"net/http"

	"pairspace-backend/internal/middleware"
	"pairspace-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CoupleHandler handles couple account HTTP requests
type CoupleHandler struct {
	coupleService *services.CoupleService
}

// NewCoupleHandler creates a new couple handler
func NewCoupleHandler(coupleService *services.CoupleService) *CoupleHandler {
	return &CoupleHandler{
		coupleService: coupleService,
	}
}

// RegisterRequest represents the request body for registering a couple
type RegisterRequest struct {
	CoupleID        string `json:"coupleId" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PartnerOneName  string `json:"partnerOneName" validate:"required,max=100"`
	PartnerOneEmail string `json:"partnerOneEmail" validate:"omitempty,email,max=254"`
	PartnerTwoName  string `json:"partnerTwoName" validate:"required,max=100"`
	PartnerTwoEmail string `json:"partnerTwoEmail" validate:"omitempty,email,max=254"`
}

// Register handles POST /api/couple/register
func (h *CoupleHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	creds, err := h.coupleService.Register(r.Context(), services.RegisterInput{
		CoupleID:        req.CoupleID,
		Password:        req.Password,
		PartnerOneName:  req.PartnerOneName,
		PartnerOneEmail: req.PartnerOneEmail,
		PartnerTwoName:  req.PartnerTwoName,
		PartnerTwoEmail: req.PartnerTwoEmail,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().Str("couple_id", creds.CoupleID).Msg("Couple registered")
	respondJSON(w, http.StatusCreated, creds)
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	CoupleID string `json:"coupleId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/couple/login
func (h *CoupleHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	creds, err := h.coupleService.Login(r.Context(), req.CoupleID, req.Password)
	if err != nil {
		log.Warn().Str("couple_id", req.CoupleID).Err(err).Msg("Login failed")
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, creds)
}

// ResolveToken handles GET /api/couple/token/{token}
func (h *CoupleHandler) ResolveToken(w http.ResponseWriter, r *http.Request) {
	couple, err := h.coupleService.ResolveByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, couple)
}

// RegisterDeviceRequest represents the request body for push registration
type RegisterDeviceRequest struct {
	PartnerName string `json:"partnerName" validate:"required"`
	DeviceToken string `json:"deviceToken" validate:"required,max=200"`
}

// RegisterDevice handles POST /api/couple/devices
func (h *CoupleHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	couple := middleware.GetCouple(r.Context())
	if couple == nil {
		respondServiceError(w, r, errMissingAuth())
		return
	}

	var req RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	device, err := h.coupleService.RegisterDevice(r.Context(), couple, req.PartnerName, req.DeviceToken)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("couple_id", couple.CoupleID).
		Str("partner", device.PartnerName).
		Msg("Device registered")
	respondJSON(w, http.StatusCreated, device)
}
