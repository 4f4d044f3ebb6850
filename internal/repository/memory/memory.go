// Package memory provides in-process implementations of the repositories.
// Stored documents are copied on every read and write, and version checks
// behave like the PostgreSQL repositories.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"pairspace-backend/internal/models"
	"pairspace-backend/internal/repository"
)

// Couples stores couples in memory
type Couples struct {
	mu      sync.RWMutex
	byID    map[string]models.Couple
	byToken map[string]string
}

// NewCouples creates an empty couple store
func NewCouples() *Couples {
	return &Couples{byID: make(map[string]models.Couple), byToken: make(map[string]string)}
}

// Create stores a couple, rejecting duplicate ids and tokens
func (s *Couples) Create(_ context.Context, c *models.Couple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.CoupleID]; ok {
		return models.ErrConflict
	}
	if _, ok := s.byToken[c.Token]; ok {
		return models.ErrConflict
	}
	s.byID[c.CoupleID] = *c
	s.byToken[c.Token] = c.CoupleID
	return nil
}

// GetByCoupleID returns a copy of the couple
func (s *Couples) GetByCoupleID(_ context.Context, coupleID string) (*models.Couple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[coupleID]
	if !ok {
		return nil, models.NotFound("couple")
	}
	return &c, nil
}

// GetByToken returns a copy of the couple owning token
func (s *Couples) GetByToken(ctx context.Context, token string) (*models.Couple, error) {
	s.mu.RLock()
	id, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, models.NotFound("couple")
	}
	return s.GetByCoupleID(ctx, id)
}

// Exists reports whether a couple id is taken
func (s *Couples) Exists(_ context.Context, coupleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[coupleID]
	return ok, nil
}

// Devices stores push device registrations in memory
type Devices struct {
	mu      sync.Mutex
	byToken map[string]models.Device
	order   []string
}

// NewDevices creates an empty device store
func NewDevices() *Devices {
	return &Devices{byToken: make(map[string]models.Device)}
}

// Upsert stores d. A known device token moves to d's couple and partner and
// keeps its id and creation time, which are written back to d.
func (s *Devices) Upsert(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byToken[d.DeviceToken]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else {
		s.order = append(s.order, d.DeviceToken)
	}
	s.byToken[d.DeviceToken] = *d
	return nil
}

// ListByCoupleID returns the devices of a couple in registration order
func (s *Devices) ListByCoupleID(_ context.Context, coupleID string) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Device
	for _, tok := range s.order {
		d, ok := s.byToken[tok]
		if ok && d.CoupleID == coupleID {
			out = append(out, &d)
		}
	}
	return out, nil
}

// DeleteByToken removes a device registration
func (s *Devices) DeleteByToken(_ context.Context, deviceToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[deviceToken]; !ok {
		return nil
	}
	delete(s.byToken, deviceToken)
	for i, tok := range s.order {
		if tok == deviceToken {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Quizzes stores quizzes in memory
type Quizzes struct {
	mu       sync.Mutex
	byCouple map[string][]*models.Quiz

	// StaleWrites makes the next n updates fail as if another writer won
	StaleWrites int
}

// NewQuizzes creates an empty quiz store
func NewQuizzes() *Quizzes {
	return &Quizzes{byCouple: make(map[string][]*models.Quiz)}
}

// Create stores a quiz
func (s *Quizzes) Create(_ context.Context, q *models.Quiz) error {
	c, err := copyQuiz(q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCouple[q.CoupleID] = append(s.byCouple[q.CoupleID], c)
	return nil
}

// GetLatestByCoupleID returns the most recently created quiz of a couple
func (s *Quizzes) GetLatestByCoupleID(_ context.Context, coupleID string) (*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byCouple[coupleID]
	if len(list) == 0 {
		return nil, models.NotFound("quiz")
	}
	return copyQuiz(list[len(list)-1])
}

// UpdateAttempts writes the attempt counters if the version matches
func (s *Quizzes) UpdateAttempts(_ context.Context, q *models.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StaleWrites > 0 {
		s.StaleWrites--
		return repository.ErrStaleVersion
	}
	for _, stored := range s.byCouple[q.CoupleID] {
		if stored.ID != q.ID {
			continue
		}
		if stored.Version != q.Version {
			return repository.ErrStaleVersion
		}
		stored.Attempts = q.Attempts
		stored.UpdatedAt = q.UpdatedAt
		stored.Version++
		q.Version++
		return nil
	}
	return repository.ErrStaleVersion
}

// Spaces stores personal spaces in memory
type Spaces struct {
	mu       sync.Mutex
	byCouple map[string]*models.PersonalSpace

	// StaleWrites makes the next n updates fail as if another writer won
	StaleWrites int
}

// NewSpaces creates an empty space store
func NewSpaces() *Spaces {
	return &Spaces{byCouple: make(map[string]*models.PersonalSpace)}
}

// Create stores a space, one per couple
func (s *Spaces) Create(_ context.Context, sp *models.PersonalSpace) error {
	c, err := copySpace(sp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCouple[sp.CoupleID]; ok {
		return models.ErrConflict
	}
	s.byCouple[sp.CoupleID] = c
	return nil
}

// GetByCoupleID returns a copy of the space of a couple
func (s *Spaces) GetByCoupleID(_ context.Context, coupleID string) (*models.PersonalSpace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.byCouple[coupleID]
	if !ok {
		return nil, models.NotFound("personal space")
	}
	return copySpace(sp)
}

// Update replaces the space if the version matches
func (s *Spaces) Update(_ context.Context, sp *models.PersonalSpace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StaleWrites > 0 {
		s.StaleWrites--
		return repository.ErrStaleVersion
	}
	stored, ok := s.byCouple[sp.CoupleID]
	if !ok || stored.Version != sp.Version {
		return repository.ErrStaleVersion
	}
	c, err := copySpace(sp)
	if err != nil {
		return err
	}
	c.Version++
	s.byCouple[sp.CoupleID] = c
	sp.Version++
	return nil
}

func copyQuiz(q *models.Quiz) (*models.Quiz, error) {
	var c models.Quiz
	if err := roundTrip(q, &c); err != nil {
		return nil, err
	}
	c.Version = q.Version
	return &c, nil
}

func copySpace(sp *models.PersonalSpace) (*models.PersonalSpace, error) {
	var c models.PersonalSpace
	if err := roundTrip(sp, &c); err != nil {
		return nil, err
	}
	c.Version = sp.Version
	c.Normalize()
	return &c, nil
}

func roundTrip(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
