package main

import (
	"os"

	"github.com/dcastano/tablero/pkg/tablero/admin"
	"github.com/dcastano/tablero/pkg/tablero/auth"
	"github.com/dcastano/tablero/pkg/tablero/database"
	"github.com/dcastano/tablero/pkg/tablero/groups"
	"github.com/dcastano/tablero/pkg/tablero/messages"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/projects"
	"github.com/dcastano/tablero/pkg/tablero/tasks"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// @title Tablero API
// @version 1.0
// @description A multi-tenant project and task tracker with per-project roles and notifications.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Get database path from environment or use default
	dbPath := os.Getenv("TABLERO_DB_PATH")
	if dbPath == "" {
		dbPath = "tablero.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.Info("Database migrations completed")

	// Create default superuser if none exists
	if err := ensureSuperuserExists(); err != nil {
		log.WithError(err).Fatal("Failed to ensure superuser exists")
	}

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "tablero",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(database.GetDB())
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Everything else requires a valid token
		protected := api.Group("", auth.AuthMiddleware())

		projectsHandler := projects.NewHandler(database.GetDB())
		projectsHandler.RegisterRoutes(protected)

		groupsHandler := groups.NewHandler(database.GetDB())
		groupsHandler.RegisterRoutes(protected)

		tasksHandler := tasks.NewHandler(database.GetDB())
		tasksHandler.RegisterRoutes(protected)

		messagesHandler := messages.NewHandler(database.GetDB())
		messagesHandler.RegisterRoutes(protected)

		adminHandler := admin.NewHandler(database.GetDB())
		adminHandler.RegisterRoutes(protected)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.WithField("port", port).Info("Starting Tablero server")
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// ensureSuperuserExists creates a default superuser if none exists in the
// database. Idempotent across restarts.
func ensureSuperuserExists() error {
	db := database.GetDB()

	var count int64
	if err := db.Model(&models.User{}).Where("superuser = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := auth.HashPassword("changeme")
	if err != nil {
		return err
	}

	superuser := models.User{
		Email:        "admin@tablero.local",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Superuser:    true,
	}
	if err := db.Create(&superuser).Error; err != nil {
		return err
	}

	log.WithField("email", superuser.Email).Info("Created default superuser (password: changeme)")
	return nil
}
