package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/boardstack/boardstack/database"
	"github.com/boardstack/boardstack/handlers"
	"github.com/boardstack/boardstack/services"
	"github.com/boardstack/boardstack/store"
)

func main() {
	// Load environment variables from .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./boardstack.db"
	}
	db, err := database.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := services.NewAuthService()
	dataService := database.NewDataService(db)

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()

	backend := store.NewServiceBackend(dataService, hub)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, dataService)
	dataHandler := handlers.NewDataHandler(dataService, backend, hub)
	authMiddleware := handlers.NewAuthMiddleware(authService)

	// Setup router
	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods("GET")
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	// Data routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)

	api.HandleFunc("/boards", dataHandler.ListBoards).Methods("GET")
	api.HandleFunc("/boards", dataHandler.CreateBoard).Methods("POST")
	api.HandleFunc("/boards/{id}", dataHandler.UpdateBoard).Methods("PATCH")
	api.HandleFunc("/boards/{id}", dataHandler.ArchiveBoard).Methods("DELETE")
	api.HandleFunc("/boards/{id}/columns", dataHandler.CreateColumn).Methods("POST")
	api.HandleFunc("/boards/{id}/columns/reorder", dataHandler.ReorderColumns).Methods("POST")
	api.HandleFunc("/boards/{id}/members", dataHandler.InviteMember).Methods("POST")
	api.HandleFunc("/boards/{id}/members/{userID}", dataHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/boards/{id}/activities", dataHandler.ListActivities).Methods("GET")

	api.HandleFunc("/columns/{id}", dataHandler.UpdateColumn).Methods("PATCH")
	api.HandleFunc("/columns/{id}", dataHandler.DeleteColumn).Methods("DELETE")
	api.HandleFunc("/columns/{id}/cards", dataHandler.CreateCard).Methods("POST")

	api.HandleFunc("/cards/reorder", dataHandler.ReorderCards).Methods("POST")
	api.HandleFunc("/cards/{id}", dataHandler.UpdateCard).Methods("PATCH")
	api.HandleFunc("/cards/{id}", dataHandler.DeleteCard).Methods("DELETE")
	api.HandleFunc("/cards/{id}/move", dataHandler.MoveCard).Methods("POST")
	api.HandleFunc("/cards/{id}/tags/{tagID}", dataHandler.AddTagToCard).Methods("POST")
	api.HandleFunc("/cards/{id}/tags/{tagID}", dataHandler.RemoveTagFromCard).Methods("DELETE")

	api.HandleFunc("/tags", dataHandler.ListTags).Methods("GET")
	api.HandleFunc("/tags", dataHandler.CreateTag).Methods("POST")
	api.HandleFunc("/tags/{id}", dataHandler.DeleteTag).Methods("DELETE")

	// WebSocket route for real-time updates
	api.HandleFunc("/ws", dataHandler.HandleWebSocket)

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./")))

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // In production, change to your domain
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Server starting on port %s", port)
	log.Fatal(server.ListenAndServe())
}
