package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dcastano/tablero/pkg/tablero/auth"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, superuser bool) models.User {
	user := models.User{Email: email, Name: "Test User", Superuser: superuser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func grantAdminMembership(t *testing.T, db *gorm.DB, user models.User) {
	project := models.Project{
		Title:     "Proyecto Test",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		CreatorID: user.ID,
	}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("Failed to create test project: %v", err)
	}
	m := models.Membership{UserID: user.ID, ProjectID: project.ID, Role: models.RoleAdministrador}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("Failed to create membership: %v", err)
	}
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, user.Superuser)
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path, authHeader string, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateUserDeniedForMiembro(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	member := createTestUser(t, db, "member@example.com", false)

	project := models.Project{Title: "Proyecto", StartDate: time.Now(), EndDate: time.Now().AddDate(0, 1, 0), CreatorID: member.ID}
	db.Create(&project)
	db.Create(&models.Membership{UserID: member.ID, ProjectID: project.ID, Role: models.RoleMiembro})

	resp := doJSON(router, "POST", "/api/admin/users", getAuthHeader(member), CreateUserRequest{
		Email:    "new@example.com",
		Password: "password123",
		Name:     "Nuevo",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}

	var body map[string]string
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["warning"] == "" {
		t.Error("Denial must carry a warning message")
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected no user created, got %d users", count)
	}
}

func TestCreateUserAllowedForAnyAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", false)
	grantAdminMembership(t, db, admin)

	resp := doJSON(router, "POST", "/api/admin/users", getAuthHeader(admin), CreateUserRequest{
		Email:    "new@example.com",
		Password: "password123",
		Name:     "Nuevo",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created UserResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Email != "new@example.com" || created.Superuser {
		t.Errorf("Unexpected created user payload: %+v", created)
	}
}

func TestCreateUserAllowedForSuperuser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	root := createTestUser(t, db, "root@example.com", true)

	resp := doJSON(router, "POST", "/api/admin/users", getAuthHeader(root), CreateUserRequest{
		Email:    "new@example.com",
		Password: "password123",
		Name:     "Nuevo",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	root := createTestUser(t, db, "root@example.com", true)
	createTestUser(t, db, "taken@example.com", false)

	resp := doJSON(router, "POST", "/api/admin/users", getAuthHeader(root), CreateUserRequest{
		Email:    "taken@example.com",
		Password: "password123",
		Name:     "Duplicado",
	})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestListUsersWithSearch(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	root := createTestUser(t, db, "root@example.com", true)
	createTestUser(t, db, "ana@example.com", false)
	createTestUser(t, db, "bruno@example.com", false)

	resp := doJSON(router, "GET", "/api/admin/users", getAuthHeader(root), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var all []UserResponse
	json.Unmarshal(resp.Body.Bytes(), &all)
	if len(all) != 3 {
		t.Errorf("Expected 3 users, got %d", len(all))
	}

	resp = doJSON(router, "GET", "/api/admin/users?q=ana", getAuthHeader(root), nil)
	var filtered []UserResponse
	json.Unmarshal(resp.Body.Bytes(), &filtered)
	if len(filtered) != 1 || filtered[0].Email != "ana@example.com" {
		t.Errorf("Expected only ana, got %v", filtered)
	}
}

func TestListUsersCarriesCounts(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", false)
	grantAdminMembership(t, db, admin)

	resp := doJSON(router, "GET", "/api/admin/users", getAuthHeader(admin), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var users []UserResponse
	json.Unmarshal(resp.Body.Bytes(), &users)
	if len(users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(users))
	}
	if users[0].Projects != 1 {
		t.Errorf("Expected project count 1, got %d", users[0].Projects)
	}
	if users[0].Memberships != 1 {
		t.Errorf("Expected membership count 1, got %d", users[0].Memberships)
	}
}

func TestListUsersDeniedWithoutAdminRole(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "plain@example.com", false)

	resp := doJSON(router, "GET", "/api/admin/users", getAuthHeader(user), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}
