package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"cirvee_lms/internal/handlers"
	"cirvee_lms/internal/middleware"
	"cirvee_lms/internal/repository"
	"cirvee_lms/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}
	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Authenticated endpoints will reject requests until valid credentials are provided")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Wire services
	repo := repository.NewGormRepository(db)
	gateway := services.NewPaystackClient()
	enrollments := services.NewEnrollmentService(db)

	installmentPct := 50
	if v, err := strconv.Atoi(os.Getenv("FIRST_INSTALLMENT_PERCENT")); err == nil {
		installmentPct = v
	}
	paymentService := services.NewPaymentService(repo, repo, gateway, enrollments, installmentPct)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	// Middleware
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, repo)
	adminHandler := handlers.NewAdminPaymentHandler(paymentService)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Authenticated routes
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(authClient, db))
	paymentHandler.Register(api)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	adminHandler.Register(admin)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
