package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/iago/studyhub-back/internal/http/handlers"
	"github.com/iago/studyhub-back/internal/http/middleware"
	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/rs/zerolog"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zerolog.Logger
	AuthToken      string
	JWTSecret      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Trace(deps.Logger),
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}),
		middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst),
		middleware.Auth(middleware.AuthConfig{Token: deps.AuthToken, JWTSecret: deps.JWTSecret}),
	)

	api := deps.API
	router.Get("/healthz", api.Health)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Post("/summaries", api.Summaries)
		r.Post("/quizzes", api.Quizzes)
		r.Post("/quizzes/grade", api.GradeQuiz)
		r.Post("/chat", api.Chat)
		r.Post("/transcriptions/audio", api.TranscribeAudio)
		r.Post("/transcriptions/youtube", api.TranscribeYouTube)
		r.Post("/documents/pdf", api.ExtractPDF)
		r.Get("/jobs/{jobID}", api.JobStatus)

		r.Route("/files", func(r chi.Router) {
			r.Get("/", api.ListFiles)
			r.Post("/", api.CreateFile)
			r.Route("/{fileID}", func(r chi.Router) {
				r.Get("/", api.GetFile)
				r.Patch("/", api.UpdateFile)
				r.Delete("/", api.DeleteFile)
				r.Get("/messages", api.ListMessages)
				r.Post("/messages", api.CreateMessage)
			})
		})
	})

	return router
}
