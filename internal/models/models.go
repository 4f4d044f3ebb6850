package models

import "time"

// Partner is one half of a couple
type Partner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Couple represents a registered couple account
type Couple struct {
	CoupleID     string    `json:"coupleId"`
	PasswordHash string    `json:"-"`
	Token        string    `json:"-"`
	PartnerOne   Partner   `json:"partnerOne"`
	PartnerTwo   Partner   `json:"partnerTwo"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasPartner reports whether name belongs to one of the partners
func (c *Couple) HasPartner(name string) bool {
	return name != "" && (c.PartnerOne.Name == name || c.PartnerTwo.Name == name)
}

// Device is an iOS device registered for push notifications
type Device struct {
	ID          string    `json:"id"`
	CoupleID    string    `json:"coupleId"`
	PartnerName string    `json:"partnerName"`
	DeviceToken string    `json:"deviceToken"`
	CreatedAt   time.Time `json:"createdAt"`
}

// QuizQuestion is a single security question with its expected answer
type QuizQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuizAttempts tracks failed submissions for a quiz
type QuizAttempts struct {
	Count       int        `json:"count"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// Quiz gates a partner's first entry into the personal space
type Quiz struct {
	ID        string         `json:"id"`
	CoupleID  string         `json:"coupleId"`
	Questions []QuizQuestion `json:"questions"`
	Attempts  QuizAttempts   `json:"attempts"`
	CreatedBy string         `json:"createdBy"`
	Version   int            `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// IsLocked reports whether submissions are blocked at now
func (q *Quiz) IsLocked(now time.Time) bool {
	return q.Attempts.LockedUntil != nil && q.Attempts.LockedUntil.After(now)
}

// PersonalSpace is the shared content container of a couple
type PersonalSpace struct {
	ID        string         `json:"id"`
	CoupleID  string         `json:"coupleId"`
	Gallery   []*GalleryItem `json:"gallery"`
	Songs     []*Song        `json:"songs"`
	Notes     []*Note        `json:"notes"`
	Version   int            `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ReactionType is one of the supported emoji reactions
type ReactionType string

const (
	ReactionHeart ReactionType = "HEART"
	ReactionSmile ReactionType = "SMILE"
	ReactionLaugh ReactionType = "LAUGH"
	ReactionWow   ReactionType = "WOW"
	ReactionSad   ReactionType = "SAD"
)

// Valid reports whether t is a known reaction type
func (t ReactionType) Valid() bool {
	switch t {
	case ReactionHeart, ReactionSmile, ReactionLaugh, ReactionWow, ReactionSad:
		return true
	}
	return false
}

// Reaction is a single emoji response by one contributor
type Reaction struct {
	ID      string       `json:"id"`
	Type    ReactionType `json:"type"`
	AddedBy string       `json:"addedBy"`
	AddedAt time.Time    `json:"addedAt"`
}

// ItemKind selects one of the collections of a personal space
type ItemKind string

const (
	KindGallery ItemKind = "gallery"
	KindSong    ItemKind = "songs"
	KindNote    ItemKind = "notes"
)

// ParseItemKind maps a path segment to an ItemKind
func ParseItemKind(s string) (ItemKind, bool) {
	switch ItemKind(s) {
	case KindGallery, KindSong, KindNote:
		return ItemKind(s), true
	}
	return "", false
}

// ItemInput carries the content fields of a new item. Only the fields of the
// target kind are read.
type ItemInput struct {
	ImageURL string
	Caption  string
	Title    string
	Artist   string
	URL      string
	Content  string
}

// ItemPatch carries a partial edit. Nil fields are left untouched.
type ItemPatch struct {
	ImageURL *string
	Caption  *string
	Title    *string
	Artist   *string
	URL      *string
	Content  *string
}
