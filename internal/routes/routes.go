package routes

import (
	"github.com/devikshitij/classjournal-backend/internal/handlers"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes(r *chi.Mux, gql *handlers.GraphQLHandler) {
	// Single GraphQL-shaped endpoint; operations are dispatched by name.
	r.Post("/api/graphql", gql.Serve)
}
