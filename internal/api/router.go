package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leadflowhq/leadflow/internal/conversation"
	"github.com/leadflowhq/leadflow/internal/identity"
	"go.uber.org/zap"
)

type contextKey string

const claimsKey contextKey = "claims"

// NewRouter builds the HTTP surface over the conversation façade. Every
// route requires a bearer credential from the identity provider.
func NewRouter(svc *conversation.Service, verifier identity.Verifier, logger *zap.Logger) http.Handler {
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(verifier, logger))

		r.Post("/assistant", h.getOrCreateAssistant)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", h.createThread)
			r.Get("/", h.listThreads)
			r.Delete("/{threadID}", h.deleteThread)
			r.Get("/{threadID}/messages", h.listMessages)
			r.Post("/{threadID}/messages", h.sendMessage)
		})

		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.uploadFile)
			r.Get("/", h.listFiles)
			r.Post("/{fileID}/attachment", h.attachFile)
			r.Delete("/{fileID}/attachment", h.removeFile)
			r.Delete("/{fileID}", h.deleteFile)
		})
	})

	return r
}

func authenticate(verifier identity.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("Rejected bearer token", zap.Error(err))
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid bearer token"})
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(r *http.Request) identity.Claims {
	claims, _ := r.Context().Value(claimsKey).(identity.Claims)
	return claims
}
