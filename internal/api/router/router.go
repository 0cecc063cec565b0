package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/dounykim/E-commerce-chatbot-groq/internal/http/middleware"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/webchat"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WebChat            *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WebChat != nil {
		r.Get("/", cfg.WebChat.HandleIndex)
		r.Route("/chat", func(chat chi.Router) {
			chat.Get("/widget.js", cfg.WebChat.HandleWidgetJS)
			chat.Get("/ws", cfg.WebChat.HandleWebSocket)
			chat.Post("/message", cfg.WebChat.HandleMessage)
			chat.Get("/history", cfg.WebChat.HandleHistory)
			chat.Post("/sessions", cfg.WebChat.HandleCreateSession)
			chat.Route("/sessions/{sessionID}", func(s chi.Router) {
				s.Post("/reset", cfg.WebChat.HandleReset)
				s.Delete("/", cfg.WebChat.HandleDestroy)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
