package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pairspace-backend/internal/metrics"
	"pairspace-backend/internal/models"
	"pairspace-backend/internal/repository"
	"pairspace-backend/internal/security"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SpaceStore persists personal spaces
type SpaceStore interface {
	Create(ctx context.Context, s *models.PersonalSpace) error
	GetByCoupleID(ctx context.Context, coupleID string) (*models.PersonalSpace, error)
	Update(ctx context.Context, s *models.PersonalSpace) error
}

// SpaceService handles the shared gallery, songs and notes of a couple
type SpaceService struct {
	spaces    SpaceStore
	couples   CoupleStore
	publisher Publisher
	sanitizer *security.TextSanitizer
	now       func() time.Time
	newID     func() string
}

// NewSpaceService creates a new personal space service
func NewSpaceService(spaces SpaceStore, couples CoupleStore, publisher Publisher) *SpaceService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &SpaceService{
		spaces:    spaces,
		couples:   couples,
		publisher: publisher,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Get returns the space of a couple
func (s *SpaceService) Get(ctx context.Context, coupleID string) (*models.PersonalSpace, error) {
	return s.spaces.GetByCoupleID(ctx, coupleID)
}

// GetOrCreate returns the existing space or creates an empty one. created
// reports whether this call created it.
func (s *SpaceService) GetOrCreate(ctx context.Context, coupleID string) (space *models.PersonalSpace, created bool, err error) {
	space, err = s.spaces.GetByCoupleID(ctx, coupleID)
	if err == nil {
		return space, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	exists, err := s.couples.Exists(ctx, coupleID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check couple: %w", err)
	}
	if !exists {
		return nil, false, models.NotFound("couple")
	}

	space = models.NewPersonalSpace(s.newID(), coupleID, s.now())
	space.Version = 1
	if err := s.spaces.Create(ctx, space); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// created concurrently by the other partner
			existing, getErr := s.spaces.GetByCoupleID(ctx, coupleID)
			return existing, false, getErr
		}
		return nil, false, err
	}

	log.Info().Str("couple_id", coupleID).Msg("Personal space created")
	s.publisher.Publish(ctx, Event{Type: EventSpaceUpdated, CoupleID: coupleID, Action: ActionSpaceCreated, At: space.CreatedAt})
	return space, true, nil
}

// AddItem appends a new item with a server-assigned id and timestamp
func (s *SpaceService) AddItem(ctx context.Context, coupleID string, kind models.ItemKind, in models.ItemInput, addedBy string) (*models.PersonalSpace, error) {
	addedBy = s.sanitizer.Clean(addedBy)
	if addedBy == "" {
		return nil, models.NewValidationError("addedBy is required")
	}
	in = s.cleanInput(in)

	var itemID string
	space, err := s.mutate(ctx, coupleID, func(space *models.PersonalSpace) error {
		itemID = s.newID()
		item, err := models.NewItem(kind, models.ItemHeader{ID: itemID, AddedBy: addedBy, AddedAt: s.now()}, in)
		if err != nil {
			return err
		}
		space.Append(item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, coupleID, kind, itemID, ActionItemAdded, addedBy)
	return space, nil
}

// EditItem overwrites only the fields supplied in patch
func (s *SpaceService) EditItem(ctx context.Context, coupleID string, kind models.ItemKind, itemID string, patch models.ItemPatch, editedBy string) (*models.PersonalSpace, error) {
	patch = s.cleanPatch(patch)

	space, err := s.mutate(ctx, coupleID, func(space *models.PersonalSpace) error {
		item, ok := space.Item(kind, itemID)
		if !ok {
			return models.NotFound("item")
		}
		return item.ApplyPatch(patch)
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, coupleID, kind, itemID, ActionItemEdited, s.sanitizer.Clean(editedBy))
	return space, nil
}

// DeleteItem removes an item together with its reactions
func (s *SpaceService) DeleteItem(ctx context.Context, coupleID string, kind models.ItemKind, itemID string, deletedBy string) (*models.PersonalSpace, error) {
	space, err := s.mutate(ctx, coupleID, func(space *models.PersonalSpace) error {
		if !space.Remove(kind, itemID) {
			return models.NotFound("item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, coupleID, kind, itemID, ActionItemDeleted, s.sanitizer.Clean(deletedBy))
	return space, nil
}

// AddOrReplaceReaction sets addedBy's reaction on an item, overwriting the
// type of an existing reaction by the same contributor
func (s *SpaceService) AddOrReplaceReaction(ctx context.Context, coupleID string, kind models.ItemKind, itemID string, t models.ReactionType, addedBy string) (*models.PersonalSpace, error) {
	if !t.Valid() {
		return nil, models.NewValidationError("unknown reaction type %q", t)
	}
	addedBy = s.sanitizer.Clean(addedBy)
	if addedBy == "" {
		return nil, models.NewValidationError("addedBy is required")
	}

	space, err := s.mutate(ctx, coupleID, func(space *models.PersonalSpace) error {
		item, ok := space.Item(kind, itemID)
		if !ok {
			return models.NotFound("item")
		}
		item.Header().SetReaction(s.newID(), t, addedBy, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, coupleID, kind, itemID, ActionReactionSet, addedBy)
	return space, nil
}

// RemoveReaction deletes a reaction by id
func (s *SpaceService) RemoveReaction(ctx context.Context, coupleID string, kind models.ItemKind, itemID, reactionID string) (*models.PersonalSpace, error) {
	var removedBy string
	space, err := s.mutate(ctx, coupleID, func(space *models.PersonalSpace) error {
		item, ok := space.Item(kind, itemID)
		if !ok {
			return models.NotFound("item")
		}
		for _, r := range item.Header().Reactions {
			if r.ID == reactionID {
				removedBy = r.AddedBy
			}
		}
		if !item.Header().RemoveReaction(reactionID) {
			return models.NotFound("reaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, coupleID, kind, itemID, ActionReactionRemoved, removedBy)
	return space, nil
}

// mutate loads the space, applies fn and writes it back with a version check.
// A lost race re-reads the document and applies fn again.
func (s *SpaceService) mutate(ctx context.Context, coupleID string, fn func(*models.PersonalSpace) error) (*models.PersonalSpace, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		space, err := s.spaces.GetByCoupleID(ctx, coupleID)
		if err != nil {
			return nil, err
		}
		if err := fn(space); err != nil {
			return nil, err
		}
		space.UpdatedAt = s.now()

		err = s.spaces.Update(ctx, space)
		if errors.Is(err, repository.ErrStaleVersion) {
			metrics.VersionConflicts.WithLabelValues("personal_space").Inc()
			log.Debug().Str("couple_id", coupleID).Int("attempt", attempt+1).Msg("Personal space changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return space, nil
	}
	return nil, fmt.Errorf("personal space %s: %w", coupleID, models.ErrConflict)
}

func (s *SpaceService) changed(ctx context.Context, coupleID string, kind models.ItemKind, itemID, action, actor string) {
	metrics.SpaceMutations.WithLabelValues(string(kind), action).Inc()
	s.publisher.Publish(ctx, Event{
		Type:     EventSpaceUpdated,
		CoupleID: coupleID,
		Action:   action,
		Kind:     kind,
		ItemID:   itemID,
		Actor:    actor,
		At:       s.now(),
	})
}

func (s *SpaceService) cleanInput(in models.ItemInput) models.ItemInput {
	return models.ItemInput{
		ImageURL: strings.TrimSpace(in.ImageURL),
		Caption:  s.sanitizer.Clean(in.Caption),
		Title:    s.sanitizer.Clean(in.Title),
		Artist:   s.sanitizer.Clean(in.Artist),
		URL:      strings.TrimSpace(in.URL),
		Content:  s.sanitizer.Clean(in.Content),
	}
}

func (s *SpaceService) cleanPatch(p models.ItemPatch) models.ItemPatch {
	clean := func(v *string, fn func(string) string) *string {
		if v == nil {
			return nil
		}
		c := fn(*v)
		return &c
	}
	return models.ItemPatch{
		ImageURL: clean(p.ImageURL, strings.TrimSpace),
		Caption:  clean(p.Caption, s.sanitizer.Clean),
		Title:    clean(p.Title, s.sanitizer.Clean),
		Artist:   clean(p.Artist, s.sanitizer.Clean),
		URL:      clean(p.URL, strings.TrimSpace),
		Content:  clean(p.Content, s.sanitizer.Clean),
	}
}
