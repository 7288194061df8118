package backend

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/logging"
)

// NewRouter builds the API router over database.
func NewRouter(database *sql.DB, logger *zap.Logger) http.Handler {
	logger = logging.OrNop(logger)
	h := &Handlers{
		svc:    NewService(database, logger),
		logger: logger.Named("backend"),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(echoRequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	router.Route("/api/domains", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Post("/positions", h.HandlePositions)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Get("/{id}/path", h.HandlePath)
		r.Get("/{id}/x-posts", h.HandlePosts)
		r.Post("/{id}/x-posts/summarize", h.HandleSummarize)
	})

	return router
}

// NewServer creates the HTTP server for the development backend.
func NewServer(database *sql.DB, logger *zap.Logger, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewRouter(database, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// echoRequestID returns the request id assigned by chimiddleware.RequestID, which
// keeps an incoming X-Request-ID.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimiddleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
