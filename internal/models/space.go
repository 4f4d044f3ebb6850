package models

import (
	"strings"
	"time"
)

// ItemHeader holds the fields shared by every item of a personal space
type ItemHeader struct {
	ID        string      `json:"id"`
	AddedBy   string      `json:"addedBy"`
	AddedAt   time.Time   `json:"addedAt"`
	Reactions []*Reaction `json:"reactions"`
}

// Header returns the shared item fields
func (h *ItemHeader) Header() *ItemHeader {
	return h
}

// SetReaction stores a reaction for addedBy. An existing reaction by the same
// contributor has its type overwritten instead of being duplicated.
func (h *ItemHeader) SetReaction(id string, t ReactionType, addedBy string, now time.Time) *Reaction {
	for _, r := range h.Reactions {
		if r.AddedBy == addedBy {
			r.Type = t
			r.AddedAt = now
			return r
		}
	}
	r := &Reaction{ID: id, Type: t, AddedBy: addedBy, AddedAt: now}
	h.Reactions = append(h.Reactions, r)
	return r
}

// RemoveReaction deletes the reaction with the given id
func (h *ItemHeader) RemoveReaction(id string) bool {
	for i, r := range h.Reactions {
		if r.ID == id {
			h.Reactions = append(h.Reactions[:i], h.Reactions[i+1:]...)
			return true
		}
	}
	return false
}

// Reactable is implemented by every item kind
type Reactable interface {
	Header() *ItemHeader
	ApplyPatch(p ItemPatch) error
}

// GalleryItem is a shared photo
type GalleryItem struct {
	ItemHeader
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption"`
}

// ApplyPatch overwrites the supplied fields
func (g *GalleryItem) ApplyPatch(p ItemPatch) error {
	if p.ImageURL != nil {
		if strings.TrimSpace(*p.ImageURL) == "" {
			return NewValidationError("imageUrl cannot be empty")
		}
		g.ImageURL = *p.ImageURL
	}
	if p.Caption != nil {
		g.Caption = *p.Caption
	}
	return nil
}

// Song is a shared song link or upload
type Song struct {
	ItemHeader
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
}

// ApplyPatch overwrites the supplied fields
func (s *Song) ApplyPatch(p ItemPatch) error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return NewValidationError("title cannot be empty")
		}
		s.Title = *p.Title
	}
	if p.URL != nil {
		if strings.TrimSpace(*p.URL) == "" {
			return NewValidationError("url cannot be empty")
		}
		s.URL = *p.URL
	}
	if p.Artist != nil {
		s.Artist = *p.Artist
	}
	return nil
}

// Note is a shared text note
type Note struct {
	ItemHeader
	Content string `json:"content"`
}

// ApplyPatch overwrites the supplied fields
func (n *Note) ApplyPatch(p ItemPatch) error {
	if p.Content != nil {
		if strings.TrimSpace(*p.Content) == "" {
			return NewValidationError("content cannot be empty")
		}
		n.Content = *p.Content
	}
	return nil
}

// NewItem builds an item of the given kind, validating required fields
func NewItem(kind ItemKind, header ItemHeader, in ItemInput) (Reactable, error) {
	if header.Reactions == nil {
		header.Reactions = []*Reaction{}
	}
	switch kind {
	case KindGallery:
		if strings.TrimSpace(in.ImageURL) == "" {
			return nil, NewValidationError("imageUrl is required")
		}
		return &GalleryItem{ItemHeader: header, ImageURL: in.ImageURL, Caption: in.Caption}, nil
	case KindSong:
		if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.URL) == "" {
			return nil, NewValidationError("title and url are required")
		}
		return &Song{ItemHeader: header, Title: in.Title, Artist: in.Artist, URL: in.URL}, nil
	case KindNote:
		if strings.TrimSpace(in.Content) == "" {
			return nil, NewValidationError("content is required")
		}
		return &Note{ItemHeader: header, Content: in.Content}, nil
	}
	return nil, NewValidationError("unknown item kind %q", kind)
}

// NewPersonalSpace returns an empty space for a couple
func NewPersonalSpace(id, coupleID string, now time.Time) *PersonalSpace {
	return &PersonalSpace{
		ID:        id,
		CoupleID:  coupleID,
		Gallery:   []*GalleryItem{},
		Songs:     []*Song{},
		Notes:     []*Note{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds an item to the collection matching its concrete type
func (s *PersonalSpace) Append(item Reactable) {
	switch v := item.(type) {
	case *GalleryItem:
		s.Gallery = append(s.Gallery, v)
	case *Song:
		s.Songs = append(s.Songs, v)
	case *Note:
		s.Notes = append(s.Notes, v)
	}
}

// Item looks up an item by kind and id
func (s *PersonalSpace) Item(kind ItemKind, id string) (Reactable, bool) {
	switch kind {
	case KindGallery:
		return find(s.Gallery, id)
	case KindSong:
		return find(s.Songs, id)
	case KindNote:
		return find(s.Notes, id)
	}
	return nil, false
}

// Remove deletes an item and, with it, all of its reactions
func (s *PersonalSpace) Remove(kind ItemKind, id string) bool {
	var ok bool
	switch kind {
	case KindGallery:
		s.Gallery, ok = remove(s.Gallery, id)
	case KindSong:
		s.Songs, ok = remove(s.Songs, id)
	case KindNote:
		s.Notes, ok = remove(s.Notes, id)
	}
	return ok
}

// Normalize replaces nil collections with empty ones so documents always
// serialise as arrays
func (s *PersonalSpace) Normalize() {
	if s.Gallery == nil {
		s.Gallery = []*GalleryItem{}
	}
	if s.Songs == nil {
		s.Songs = []*Song{}
	}
	if s.Notes == nil {
		s.Notes = []*Note{}
	}
}

func find[T Reactable](items []T, id string) (Reactable, bool) {
	for _, it := range items {
		if it.Header().ID == id {
			return it, true
		}
	}
	return nil, false
}

func remove[T Reactable](items []T, id string) ([]T, bool) {
	for i, it := range items {
		if it.Header().ID == id {
			return append(items[:i], items[i+1:]...), true
		}
	}
	return items, false
}
