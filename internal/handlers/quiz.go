package handlers

import (
	"net/http"

	"pairspace-backend/internal/middleware"
	"pairspace-backend/internal/models"
	"pairspace-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// QuizHandler handles quiz HTTP requests
type QuizHandler struct {
	quizService *services.QuizService
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(quizService *services.QuizService) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
	}
}

// QuestionRequest is one question/answer pair
type QuestionRequest struct {
	Question string `json:"question" validate:"required,max=500"`
	Answer   string `json:"answer" validate:"required,max=200"`
}

// CreateQuizRequest represents the request body for creating a quiz
type CreateQuizRequest struct {
	CoupleID  string            `json:"coupleId" validate:"required"`
	Questions []QuestionRequest `json:"questions" validate:"required,min=2,max=5,dive"`
	CreatedBy string            `json:"createdBy" validate:"required"`
}

// CreateQuiz handles POST /api/quiz/create
func (h *QuizHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	couple := middleware.GetCouple(r.Context())
	if couple == nil {
		respondServiceError(w, r, errMissingAuth())
		return
	}

	var req CreateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.CoupleID != couple.CoupleID {
		respondServiceError(w, r, models.ErrForbidden)
		return
	}

	questions := make([]models.QuizQuestion, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = models.QuizQuestion{Question: q.Question, Answer: q.Answer}
	}

	quiz, err := h.quizService.CreateQuiz(r.Context(), req.CoupleID, questions, req.CreatedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, quiz)
}

// GetQuiz handles GET /api/quiz/{token}
func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizService.GetQuizForToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quiz)
}

// SubmitAnswersRequest represents the request body for answering a quiz
type SubmitAnswersRequest struct {
	Answers []string `json:"answers" validate:"required"`
}

// SubmitAnswers handles POST /api/quiz/{token}/submit
func (h *QuizHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.quizService.SubmitAnswers(r.Context(), chi.URLParam(r, "token"), req.Answers); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
