package groups

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dcastano/tablero/pkg/tablero/models"
)

func TestCreateGeneralGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com")
	createTestProject(t, db, admin, models.RoleAdministrador)

	resp := doJSON(router, "POST", "/api/groups", getAuthHeader(admin), CreateGroupRequest{Name: "Anuncios"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Name != "Anuncios" {
		t.Errorf("Expected name 'Anuncios', got %s", response.Name)
	}
	if response.ProjectID != nil {
		t.Errorf("General group must have no project, got %v", *response.ProjectID)
	}

	var stored models.Group
	db.First(&stored, response.ID)
	if stored.ProjectID != nil {
		t.Error("Stored general group must have a NULL project")
	}
}

func TestCreateGeneralGroupDeniedWithoutAdminRole(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	member := createTestUser(t, db, "member@example.com")
	createTestProject(t, db, member, models.RoleMiembro)

	resp := doJSON(router, "POST", "/api/groups", getAuthHeader(member), CreateGroupRequest{Name: "Anuncios"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.Group{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no group rows after denial, got %d", count)
	}
}

func TestCreateGeneralGroupAllowedForSuperuser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	root := models.User{Email: "root@example.com", Name: "Root", Superuser: true}
	db.Create(&root)

	resp := doJSON(router, "POST", "/api/groups", getAuthHeader(root), CreateGroupRequest{Name: "Anuncios"})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201 for superuser, got %d", resp.Code)
	}
}

func TestCreateGeneralGroupDuplicateName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com")
	createTestProject(t, db, admin, models.RoleAdministrador)

	db.Create(&models.Group{Name: "Anuncios"})

	// sqlite lets duplicate NULLs through the unique index, so the handler's
	// own check has to reject this
	resp := doJSON(router, "POST", "/api/groups", getAuthHeader(admin), CreateGroupRequest{Name: "Anuncios"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.Group{}).Where("project_id IS NULL").Count(&count)
	if count != 1 {
		t.Errorf("Expected a single general group, got %d", count)
	}
}

func TestGeneralGroupNameCanRepeatInsideProject(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com")
	project := createTestProject(t, db, admin, models.RoleAdministrador)

	pid := project.ID
	db.Create(&models.Group{Name: "Anuncios", ProjectID: &pid})

	// Uniqueness is per scope: a project group does not block the general name
	resp := doJSON(router, "POST", "/api/groups", getAuthHeader(admin), CreateGroupRequest{Name: "Anuncios"})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListGeneralGroups(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com")
	project := createTestProject(t, db, admin, models.RoleAdministrador)

	pid := project.ID
	db.Create(&models.Group{Name: "Anuncios"})
	db.Create(&models.Group{Name: "Diseño", ProjectID: &pid})

	resp := doJSON(router, "GET", "/api/groups", getAuthHeader(admin), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 1 || groups[0].Name != "Anuncios" {
		t.Errorf("Expected only the project-less group, got %v", groups)
	}
}
