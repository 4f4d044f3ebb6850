package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"pairspace-backend/internal/models"
	"pairspace-backend/internal/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	minCoupleIDLength = 3
	maxCoupleIDLength = 64
)

var coupleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CoupleStore persists couples
type CoupleStore interface {
	Create(ctx context.Context, c *models.Couple) error
	GetByCoupleID(ctx context.Context, coupleID string) (*models.Couple, error)
	GetByToken(ctx context.Context, token string) (*models.Couple, error)
	Exists(ctx context.Context, coupleID string) (bool, error)
}

// DeviceStore persists push device registrations
type DeviceStore interface {
	Upsert(ctx context.Context, d *models.Device) error
	ListByCoupleID(ctx context.Context, coupleID string) ([]*models.Device, error)
	DeleteByToken(ctx context.Context, deviceToken string) error
}

// CoupleService handles registration, login and token resolution
type CoupleService struct {
	couples   CoupleStore
	devices   DeviceStore
	hasher    *security.PasswordHasher
	sanitizer *security.TextSanitizer
	secret    []byte
	now       func() time.Time
}

// NewCoupleService creates a new couple service
func NewCoupleService(couples CoupleStore, devices DeviceStore, hasher *security.PasswordHasher, tokenSecret string) *CoupleService {
	return &CoupleService{
		couples:   couples,
		devices:   devices,
		hasher:    hasher,
		sanitizer: security.NewTextSanitizer(),
		secret:    []byte(tokenSecret),
		now:       time.Now,
	}
}

// RegisterInput holds the fields of a new couple account
type RegisterInput struct {
	CoupleID        string
	Password        string
	PartnerOneName  string
	PartnerOneEmail string
	PartnerTwoName  string
	PartnerTwoEmail string
}

// Credentials is returned by Register and Login
type Credentials struct {
	Token    string `json:"token"`
	CoupleID string `json:"coupleId"`
}

// Register creates a couple with a hashed password and a fresh token
func (s *CoupleService) Register(ctx context.Context, in RegisterInput) (*Credentials, error) {
	coupleID := strings.TrimSpace(in.CoupleID)
	if n := utf8.RuneCountInString(coupleID); n < minCoupleIDLength || n > maxCoupleIDLength {
		return nil, models.NewValidationError("coupleId must be between %d and %d characters", minCoupleIDLength, maxCoupleIDLength)
	}
	if !coupleIDPattern.MatchString(coupleID) {
		return nil, models.NewValidationError("coupleId may only contain letters, digits, '-' and '_'")
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLength || n > maxPasswordLength {
		return nil, models.NewValidationError("password must be between %d and %d characters", minPasswordLength, maxPasswordLength)
	}
	partnerOne := models.Partner{Name: s.sanitizer.Clean(in.PartnerOneName), Email: strings.TrimSpace(in.PartnerOneEmail)}
	partnerTwo := models.Partner{Name: s.sanitizer.Clean(in.PartnerTwoName), Email: strings.TrimSpace(in.PartnerTwoEmail)}
	if partnerOne.Name == "" || partnerTwo.Name == "" {
		return nil, models.NewValidationError("both partner names are required")
	}

	exists, err := s.couples.Exists(ctx, coupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to check couple id: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("couple %s: %w", coupleID, models.ErrConflict)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	token, err := s.GenerateToken(coupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	couple := &models.Couple{
		CoupleID:     coupleID,
		PasswordHash: hash,
		Token:        token,
		PartnerOne:   partnerOne,
		PartnerTwo:   partnerTwo,
		CreatedAt:    s.now(),
	}
	if err := s.couples.Create(ctx, couple); err != nil {
		return nil, err
	}

	return &Credentials{Token: couple.Token, CoupleID: couple.CoupleID}, nil
}

// Login verifies the password and returns the token issued at registration
func (s *CoupleService) Login(ctx context.Context, coupleID, password string) (*Credentials, error) {
	couple, err := s.couples.GetByCoupleID(ctx, strings.TrimSpace(coupleID))
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, couple.PasswordHash) {
		return nil, models.ErrAuth
	}
	return &Credentials{Token: couple.Token, CoupleID: couple.CoupleID}, nil
}

// ResolveByToken returns the couple owning token. Tokens that were not signed
// by this server are rejected without a database lookup.
func (s *CoupleService) ResolveByToken(ctx context.Context, token string) (*models.Couple, error) {
	if _, err := s.ValidateToken(token); err != nil {
		return nil, models.NotFound("couple")
	}
	return s.couples.GetByToken(ctx, token)
}

// Exists reports whether a couple id is registered
func (s *CoupleService) Exists(ctx context.Context, coupleID string) (bool, error) {
	return s.couples.Exists(ctx, coupleID)
}

// RegisterDevice stores a push device token for one of the partners
func (s *CoupleService) RegisterDevice(ctx context.Context, couple *models.Couple, partnerName, deviceToken string) (*models.Device, error) {
	partnerName = s.sanitizer.Clean(partnerName)
	deviceToken = strings.TrimSpace(deviceToken)
	if deviceToken == "" {
		return nil, models.NewValidationError("deviceToken is required")
	}
	if !couple.HasPartner(partnerName) {
		return nil, models.NewValidationError("partnerName must be one of the couple's partners")
	}

	device := &models.Device{
		ID:          uuid.New().String(),
		CoupleID:    couple.CoupleID,
		PartnerName: partnerName,
		DeviceToken: deviceToken,
		CreatedAt:   s.now(),
	}
	if err := s.devices.Upsert(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// GenerateToken signs an opaque bearer token for a couple. The random jti
// keeps tokens unique even for re-registered couple ids.
func (s *CoupleService) GenerateToken(coupleID string) (string, error) {
	claims := jwt.MapClaims{
		"couple_id": coupleID,
		"jti":       uuid.New().String(),
		"iat":       s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken checks the signature and returns the couple id claim
func (s *CoupleService) ValidateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("empty token")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	coupleID, ok := claims["couple_id"].(string)
	if !ok || coupleID == "" {
		return "", fmt.Errorf("couple_id not found in token")
	}
	return coupleID, nil
}
