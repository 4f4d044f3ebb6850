package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pairspace-backend/internal/lockout"
	"pairspace-backend/internal/metrics"
	"pairspace-backend/internal/models"
	"pairspace-backend/internal/repository"
	"pairspace-backend/internal/security"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	minQuizQuestions = 2
	maxQuizQuestions = 5

	// maxWriteAttempts bounds the re-read and re-apply loop of conditional
	// writes that lost a race
	maxWriteAttempts = 3
)

// QuizStore persists quizzes
type QuizStore interface {
	Create(ctx context.Context, q *models.Quiz) error
	GetLatestByCoupleID(ctx context.Context, coupleID string) (*models.Quiz, error)
	UpdateAttempts(ctx context.Context, q *models.Quiz) error
}

// QuizService handles quiz creation and gated submissions
type QuizService struct {
	quizzes   QuizStore
	couples   *CoupleService
	policy    lockout.Policy
	publisher Publisher
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewQuizService creates a new quiz service
func NewQuizService(quizzes QuizStore, couples *CoupleService, policy lockout.Policy, publisher Publisher) *QuizService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &QuizService{
		quizzes:   quizzes,
		couples:   couples,
		policy:    policy,
		publisher: publisher,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
	}
}

// CreateQuiz stores 2 to 5 question/answer pairs for a couple
func (s *QuizService) CreateQuiz(ctx context.Context, coupleID string, questions []models.QuizQuestion, createdBy string) (*models.Quiz, error) {
	if n := len(questions); n < minQuizQuestions || n > maxQuizQuestions {
		return nil, models.NewValidationError("a quiz needs between %d and %d questions, got %d", minQuizQuestions, maxQuizQuestions, n)
	}
	createdBy = s.sanitizer.Clean(createdBy)
	if createdBy == "" {
		return nil, models.NewValidationError("createdBy is required")
	}

	cleaned := make([]models.QuizQuestion, len(questions))
	for i, q := range questions {
		cleaned[i] = models.QuizQuestion{
			Question: s.sanitizer.Clean(q.Question),
			Answer:   strings.TrimSpace(q.Answer),
		}
		if cleaned[i].Question == "" || cleaned[i].Answer == "" {
			return nil, models.NewValidationError("question %d needs both a question and an answer", i+1)
		}
	}

	exists, err := s.couples.Exists(ctx, coupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to check couple: %w", err)
	}
	if !exists {
		return nil, models.NotFound("couple")
	}

	now := s.now()
	quiz := &models.Quiz{
		ID:        uuid.New().String(),
		CoupleID:  coupleID,
		Questions: cleaned,
		CreatedBy: createdBy,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, err
	}

	log.Info().Str("couple_id", coupleID).Int("questions", len(cleaned)).Msg("Quiz created")
	return quiz, nil
}

// PublicQuiz is the quiz as shown to the answering partner
type PublicQuiz struct {
	CoupleID     string     `json:"coupleId"`
	CreatedBy    string     `json:"createdBy"`
	Questions    []string   `json:"questions"`
	AttemptsLeft int        `json:"attemptsLeft"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`
}

// GetQuizForToken returns the questions without their answers
func (s *QuizService) GetQuizForToken(ctx context.Context, token string) (*PublicQuiz, error) {
	couple, err := s.couples.ResolveByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetLatestByCoupleID(ctx, couple.CoupleID)
	if err != nil {
		return nil, err
	}

	pub := &PublicQuiz{
		CoupleID:     quiz.CoupleID,
		CreatedBy:    quiz.CreatedBy,
		Questions:    make([]string, len(quiz.Questions)),
		AttemptsLeft: s.policy.AttemptsLeft(quiz.Attempts.Count),
	}
	for i, q := range quiz.Questions {
		pub.Questions[i] = q.Question
	}
	if quiz.IsLocked(s.now()) {
		pub.LockedUntil = quiz.Attempts.LockedUntil
	}
	return pub, nil
}

// SubmitAnswers checks answers against the couple's quiz. It returns nil on
// success, *models.RateLimitedError while locked and
// *models.IncorrectAnswersError on any mismatch.
func (s *QuizService) SubmitAnswers(ctx context.Context, token string, answers []string) error {
	couple, err := s.couples.ResolveByToken(ctx, token)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		quiz, err := s.quizzes.GetLatestByCoupleID(ctx, couple.CoupleID)
		if err != nil {
			return err
		}

		now := s.now()
		if quiz.IsLocked(now) {
			metrics.QuizSubmissions.WithLabelValues("locked").Inc()
			return &models.RateLimitedError{LockedUntil: *quiz.Attempts.LockedUntil}
		}

		correct := answersMatch(quiz.Questions, answers)
		if correct {
			s.policy.RecordSuccess(&quiz.Attempts, now)
		} else {
			s.policy.RecordFailure(&quiz.Attempts, now)
		}
		quiz.UpdatedAt = now

		err = s.quizzes.UpdateAttempts(ctx, quiz)
		if errors.Is(err, repository.ErrStaleVersion) {
			metrics.VersionConflicts.WithLabelValues("quiz").Inc()
			continue
		}
		if err != nil {
			return err
		}

		if correct {
			metrics.QuizSubmissions.WithLabelValues("success").Inc()
			s.publisher.Publish(ctx, Event{Type: EventQuizPassed, CoupleID: couple.CoupleID, At: now})
			return nil
		}

		metrics.QuizSubmissions.WithLabelValues("incorrect").Inc()
		log.Info().
			Str("couple_id", couple.CoupleID).
			Int("count", quiz.Attempts.Count).
			Msg("Incorrect quiz answers")

		if quiz.IsLocked(now) {
			s.publisher.Publish(ctx, Event{
				Type:        EventQuizLocked,
				CoupleID:    couple.CoupleID,
				LockedUntil: quiz.Attempts.LockedUntil,
				At:          now,
			})
		}
		return &models.IncorrectAnswersError{
			AttemptsLeft: s.policy.AttemptsLeft(quiz.Attempts.Count),
			LockedUntil:  quiz.Attempts.LockedUntil,
		}
	}

	return fmt.Errorf("quiz for %s: %w", couple.CoupleID, models.ErrConflict)
}

// answersMatch compares positionally and case-insensitively. A submission
// with a different number of answers never matches.
func answersMatch(questions []models.QuizQuestion, answers []string) bool {
	if len(answers) != len(questions) {
		return false
	}
	for i, q := range questions {
		if !strings.EqualFold(strings.TrimSpace(q.Answer), strings.TrimSpace(answers[i])) {
			return false
		}
	}
	return true
}
