package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/devikshitij/classjournal-backend/internal/config"
	"github.com/devikshitij/classjournal-backend/internal/database"
	"github.com/devikshitij/classjournal-backend/internal/handlers"
	"github.com/devikshitij/classjournal-backend/internal/middleware"
	"github.com/devikshitij/classjournal-backend/internal/repository"
	"github.com/devikshitij/classjournal-backend/internal/routes"
	"github.com/devikshitij/classjournal-backend/internal/services"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	if err := database.SeedUsers(); err != nil {
		log.Fatal("Failed to seed users:", err)
	}

	// Redis only backs the rate limiter, so a missing instance is not fatal
	if cfg.RedisURI != "" {
		log.Printf("Connecting to Redis...")
		if err := database.ConnectRedis(cfg.RedisURI); err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v", err)
			log.Println("Rate limiting will not be available")
		} else {
			defer database.DisconnectRedis()
		}
	} else {
		log.Println("Warning: REDIS_URI not set. Rate limiting will not be available")
	}

	// Initialize Cloudinary-backed media service
	var media services.Uploader
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		mediaService, err := services.NewMediaService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("File uploads will not be available")
		} else {
			media = mediaService
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. File uploads will not be available")
	}

	store := repository.NewPostgresStore(database.PostgresDB)
	tokens := services.NewTokenService(cfg.JWTSecret)
	journals := services.NewJournalService(store, tokens, media)
	gql := handlers.NewGraphQLHandler(journals, tokens)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimitMiddleware)

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, gql)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/graphql")

	log.Printf("🚀 classjournal backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
