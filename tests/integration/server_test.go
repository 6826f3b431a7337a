package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dcastano/tablero/pkg/tablero/admin"
	"github.com/dcastano/tablero/pkg/tablero/auth"
	"github.com/dcastano/tablero/pkg/tablero/groups"
	"github.com/dcastano/tablero/pkg/tablero/messages"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/projects"
	"github.com/dcastano/tablero/pkg/tablero/tasks"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// setupFullServer creates a Gin engine with all routes registered
// This mirrors the setup in cmd/tablero-server/main.go
func setupFullServer(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		protected := api.Group("", auth.AuthMiddleware())

		projects.NewHandler(db).RegisterRoutes(protected)
		groups.NewHandler(db).RegisterRoutes(protected)
		tasks.NewHandler(db).RegisterRoutes(protected)
		messages.NewHandler(db).RegisterRoutes(protected)
		admin.NewHandler(db).RegisterRoutes(protected)
	}

	return r
}

func doRequest(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// registerAndLogin creates an account through the public auth routes and
// returns the session token
func registerAndLogin(t *testing.T, router *gin.Engine, email string) string {
	resp := doRequest(router, "POST", "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "password123",
		"name":     "Usuario " + email,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to register %s: %d %s", email, resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "POST", "/api/auth/login", "", gin.H{
		"email":    email,
		"password": "password123",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Failed to log in %s: %d %s", email, resp.Code, resp.Body.String())
	}

	var body struct {
		Token string `json:"token"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Token == "" {
		t.Fatalf("Login response missing token: %s", resp.Body.String())
	}
	return body.Token
}

func TestHealthEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	resp := doRequest(router, "GET", "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	for _, path := range []string{"/api/projects", "/api/inbox", "/api/notifications", "/api/admin/users"} {
		resp := doRequest(router, "GET", path, "", nil)
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401 for %s without token, got %d", path, resp.Code)
		}
	}
}

// TestProjectLifecycle walks the full flow: register two users, create a
// project, pull the second user in through a group, assign a task, comment on
// it and check the resulting notifications.
func TestProjectLifecycle(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	anaToken := registerAndLogin(t, router, "ana@example.com")
	brunoToken := registerAndLogin(t, router, "bruno@example.com")

	dueDate := time.Now().Add(7 * 24 * time.Hour).Format("2006-01-02")

	// Ana creates a project and becomes its administrador
	resp := doRequest(router, "POST", "/api/projects", anaToken, gin.H{
		"title":       "Lanzamiento web",
		"description": "Rediseño del sitio",
		"start_date":  "2026-01-01",
		"end_date":    "2026-06-30",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to create project: %d %s", resp.Code, resp.Body.String())
	}
	var project struct {
		ID uint `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &project)
	base := fmt.Sprintf("/api/projects/%d", project.ID)

	// Bruno cannot see the project yet
	resp = doRequest(router, "GET", base, brunoToken, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for non-member, got %d", resp.Code)
	}

	// Ana creates a group and assigns Bruno as miembro
	resp = doRequest(router, "POST", base+"/groups", anaToken, gin.H{"name": "Frontend"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to create group: %d %s", resp.Code, resp.Body.String())
	}
	var group struct {
		ID uint `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &group)

	resp = doRequest(router, "POST", fmt.Sprintf("%s/groups/%d/members", base, group.ID), anaToken, gin.H{
		"user_id": 2,
		"role":    "miembro",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to assign member: %d %s", resp.Code, resp.Body.String())
	}

	// Membership makes the project visible to Bruno
	resp = doRequest(router, "GET", base, brunoToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200 after membership, got %d", resp.Code)
	}

	// But miembro cannot manage groups
	resp = doRequest(router, "POST", base+"/groups", brunoToken, gin.H{"name": "Backend"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for miembro creating group, got %d", resp.Code)
	}

	// Ana assigns Bruno a task; Bruno gets notified
	resp = doRequest(router, "POST", base+"/tasks", anaToken, gin.H{
		"title":       "Maquetar portada",
		"description": "Primera versión de la portada",
		"due_date":    dueDate,
		"assignees":   []uint{2},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to create task: %d %s", resp.Code, resp.Body.String())
	}
	var task struct {
		ID uint `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &task)

	resp = doRequest(router, "GET", "/api/notifications", brunoToken, nil)
	var notif struct {
		Notifications []struct {
			Body string `json:"body"`
		} `json:"notifications"`
		Unread int64 `json:"unread"`
	}
	json.Unmarshal(resp.Body.Bytes(), &notif)
	if notif.Unread != 1 || len(notif.Notifications) != 1 {
		t.Fatalf("Expected 1 unread notification for Bruno, got %+v", notif)
	}

	// Bruno, as assignee, can edit the task
	taskPath := fmt.Sprintf("%s/tasks/%d", base, task.ID)
	resp = doRequest(router, "PUT", taskPath, brunoToken, gin.H{
		"title":       "Maquetar portada",
		"description": "Primera versión de la portada",
		"due_date":    dueDate,
		"status":      "en_progreso",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Assignee update failed: %d %s", resp.Code, resp.Body.String())
	}

	// Comments fan out to the other assignees only
	resp = doRequest(router, "POST", taskPath+"/comments", anaToken, gin.H{"body": "¿Avances?"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to comment: %d %s", resp.Code, resp.Body.String())
	}

	// Opening the inbox clears Bruno's unread notifications
	resp = doRequest(router, "GET", "/api/inbox", brunoToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Inbox failed: %d %s", resp.Code, resp.Body.String())
	}
	resp = doRequest(router, "GET", "/api/notifications", brunoToken, nil)
	json.Unmarshal(resp.Body.Bytes(), &notif)
	if notif.Unread != 0 {
		t.Errorf("Expected 0 unread after inbox, got %d", notif.Unread)
	}

	// Deleting the project removes everything underneath it
	resp = doRequest(router, "DELETE", base, anaToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Failed to delete project: %d %s", resp.Code, resp.Body.String())
	}
	var count int64
	db.Model(&models.Task{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no tasks after cascade delete, got %d", count)
	}
	db.Model(&models.Membership{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no memberships after cascade delete, got %d", count)
	}
}

// TestAdminGateAcrossProjects checks that an administrador role in any project
// opens the user administration surface
func TestAdminGateAcrossProjects(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	anaToken := registerAndLogin(t, router, "ana@example.com")

	// Before owning any project: denied
	resp := doRequest(router, "GET", "/api/admin/users", anaToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 before any admin role, got %d", resp.Code)
	}

	// Creating a project grants an administrador membership
	resp = doRequest(router, "POST", "/api/projects", anaToken, gin.H{
		"title":       "Proyecto propio",
		"description": "Cualquiera",
		"start_date":  "2026-01-01",
		"end_date":    "2026-02-01",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Failed to create project: %d %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/api/admin/users", anaToken, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected 200 with admin membership, got %d", resp.Code)
	}
}
