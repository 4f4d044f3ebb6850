package cmd

import (
	"net/http"
	"strings"

	"pairspace-backend/internal/handlers"
	"pairspace-backend/internal/middleware"
	"pairspace-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routerDeps holds everything the HTTP layer is built from
type routerDeps struct {
	coupleService *services.CoupleService
	quizService   *services.QuizService
	spaceService  *services.SpaceService
	mediaService  *services.MediaService
	hub           *services.WSHub
	db            handlers.Pinger

	// uploadsDir is served under /uploads when the disk backend is used
	uploadsDir  string
	authRate    string
	corsOrigins []string
	development bool
}

func newRouter(deps routerDeps) (http.Handler, error) {
	authLimiter, err := middleware.NewIPRateLimiter(deps.authRate)
	if err != nil {
		return nil, err
	}

	coupleHandler := handlers.NewCoupleHandler(deps.coupleService)
	quizHandler := handlers.NewQuizHandler(deps.quizService)
	spaceHandler := handlers.NewSpaceHandler(deps.spaceService)
	uploadHandler := handlers.NewUploadHandler(deps.mediaService)
	wsHandler := handlers.NewWebSocketHandler(deps.hub, deps.coupleService, deps.corsOrigins)
	healthHandler := handlers.NewHealthHandler(deps.db)
	auth := middleware.AuthMiddleware(deps.coupleService)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.NewSecure(middleware.SecureOptions(deps.development)))
	r.Use(middleware.CORS(deps.corsOrigins))

	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", wsHandler.HandleWebSocket)
	if deps.uploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", noDirListing(http.FileServer(http.Dir(deps.uploadsDir)))))
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/couple/token/{token}", coupleHandler.ResolveToken)
		r.Get("/quiz/{token}", quizHandler.GetQuiz)

		r.Group(func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/couple/register", coupleHandler.Register)
			r.Post("/couple/login", coupleHandler.Login)
			r.Post("/quiz/{token}/submit", quizHandler.SubmitAnswers)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/couple/devices", coupleHandler.RegisterDevice)
			r.Post("/quiz/create", quizHandler.CreateQuiz)
			r.Post("/upload/presign", uploadHandler.Presign)
			r.Post("/upload/{kind}", uploadHandler.Upload)

			r.Post("/personal-space", spaceHandler.GetOrCreate)
			r.Route("/personal-space/{coupleId}", func(r chi.Router) {
				r.Use(middleware.RequireCoupleParam("coupleId"))
				r.Get("/", spaceHandler.GetSpace)
				r.Post("/{kind}", spaceHandler.AddItem)
				r.Put("/{kind}/{itemId}", spaceHandler.EditItem)
				r.Delete("/{kind}/{itemId}", spaceHandler.DeleteItem)
				r.Post("/{kind}/{itemId}/reaction", spaceHandler.AddReaction)
				r.Delete("/{kind}/{itemId}/reaction", spaceHandler.RemoveReaction)
			})
		})
	})

	return r, nil
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
