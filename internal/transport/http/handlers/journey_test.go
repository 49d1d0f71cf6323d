package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"hrmaccess/internal/app/server"
	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/platform/config"
)

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func testConfig(driver string) config.Config {
	return config.Config{
		Addr:               ":0",
		Environment:        "test",
		StoreDriver:        driver,
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		AuditRecentLimit:   50,
		RunMigrations:      true,
		RunSeed:            true,
		SeedTenantName:     "Test Tenant",
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		MetricsEnabled:     true,
		LogLevel:           "error",
	}
}

func TestRoleReassignmentJourney(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	alice := app.Memory.AddEmployee(core.Employee{TenantID: app.TenantID, FirstName: "Alice", LastName: "Ng", Email: "alice@test.local", Department: "Engineering"})
	bob := app.Memory.AddEmployee(core.Employee{TenantID: app.TenantID, FirstName: "Bob", LastName: "Ruiz", Email: "bob@test.local", Department: "Sales"})

	ts := httptest.NewServer(app.Router)
	defer ts.Close()
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	var snapshot struct {
		State     string `json:"state"`
		Employees []struct {
			Employee core.Employee `json:"employee"`
			Role     *roles.Role   `json:"role"`
		} `json:"employees"`
		Roles []roles.Role `json:"roles"`
	}
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/access/console", token, nil, http.StatusOK), &snapshot)
	if snapshot.State != "browsing" || len(snapshot.Roles) != 4 || len(snapshot.Employees) != 3 {
		t.Fatalf("unexpected snapshot: state=%s roles=%d employees=%d", snapshot.State, len(snapshot.Roles), len(snapshot.Employees))
	}
	for _, view := range snapshot.Employees {
		if view.Role == nil {
			t.Fatalf("expected every employee to hold a role after load, %s has none", view.Employee.Email)
		}
	}
	manager := findRole(t, snapshot.Roles, auth.RoleManager)
	admin := findRole(t, snapshot.Roles, auth.RoleAdmin)

	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/access/console/stage", token, map[string]any{
		"employeeId": alice.ID, "roleId": admin.ID,
	}, http.StatusUnprocessableEntity)
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/access/console/stage", token, map[string]any{
		"employeeId": alice.ID, "roleId": manager.ID, "reason": "promotion",
	}, http.StatusOK)

	var result assignments.CommitResult
	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/access/console/commit", token, nil, http.StatusOK), &result)
	if result.Committed != 1 || result.Items[0].Status != assignments.ItemStatusCommitted || result.Items[0].AuditID == "" {
		t.Fatalf("unexpected commit result: %+v", result)
	}

	var current struct {
		Role *roles.Role `json:"role"`
	}
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/employees/"+alice.ID+"/role", token, nil, http.StatusOK), &current)
	if current.Role == nil || current.Role.ID != manager.ID {
		t.Fatalf("expected alice to hold manager, got %+v", current.Role)
	}

	var history []map[string]any
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/audit/role-changes", token, nil, http.StatusOK), &history)
	if len(history) != 1 || history[0]["employeeId"] != alice.ID || history[0]["reason"] != "promotion" {
		t.Fatalf("unexpected audit history: %v", history)
	}

	resp, body := rawGet(t, client, ts.URL+"/api/v1/audit/role-changes/export?format=csv", token)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected export response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "Alice Ng") || !strings.Contains(body, auth.RoleManager) {
		t.Fatalf("expected resolved names in export, got %q", body)
	}

	stale := doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/"+manager.ID+"/permissions/toggle", token, map[string]any{
		"permission": string(auth.PermReportsExport), "expectedVersion": manager.Version + 5,
	}, http.StatusConflict)
	if stale.Error == nil || stale.Error.Code != "stale_role" {
		t.Fatalf("expected stale_role, got %+v", stale.Error)
	}
	readOnly := doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/"+admin.ID+"/clear-all", token, nil, http.StatusConflict)
	if readOnly.Error == nil || readOnly.Error.Code != "admin_role_read_only" {
		t.Fatalf("expected admin_role_read_only, got %+v", readOnly.Error)
	}

	var toggled roles.Role
	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/"+manager.ID+"/permissions/toggle", token, map[string]any{
		"permission": string(auth.PermReportsExport), "expectedVersion": manager.Version,
	}, http.StatusOK), &toggled)
	if !toggled.Has(auth.PermReportsExport) || toggled.Version != manager.Version+1 {
		t.Fatalf("unexpected toggled role: %+v", toggled)
	}

	hash, err := auth.HashPassword("Alice123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	app.Memory.AddUser(app.TenantID, alice.ID, alice.Email, hash)
	aliceToken := login(t, client, ts.URL, alice.Email, "Alice123!")

	doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/roles", aliceToken, nil, http.StatusForbidden)
	doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/access/console", aliceToken, nil, http.StatusForbidden)
	var own struct {
		Permissions []auth.Permission `json:"permissions"`
	}
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/employees/"+alice.ID+"/permissions", aliceToken, nil, http.StatusOK), &own)
	if !containsPermission(own.Permissions, auth.PermReportsExport) {
		t.Fatalf("expected alice to see the toggled permission, got %v", own.Permissions)
	}

	var item assignments.ItemResult
	decode(t, doJSON(t, client, http.MethodPut, ts.URL+"/api/v1/employees/"+bob.ID+"/role", token, map[string]any{
		"roleId": manager.ID, "reason": "team lead",
	}, http.StatusOK), &item)
	if item.Status != assignments.ItemStatusCommitted || item.NewRoleID != manager.ID || item.OldRoleID == "" {
		t.Fatalf("unexpected reassignment result: %+v", item)
	}
	doJSON(t, client, http.MethodPut, ts.URL+"/api/v1/employees/"+bob.ID+"/role", aliceToken, map[string]any{
		"roleId": manager.ID,
	}, http.StatusForbidden)

	employee := findRole(t, snapshot.Roles, auth.RoleEmployee)
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/access/console/load", token, nil, http.StatusOK)
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/access/console/stage", token, map[string]any{
		"employeeId": bob.ID, "roleId": employee.ID,
	}, http.StatusOK)
	closeReq, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/access/console", nil)
	if err != nil {
		t.Fatalf("build close request: %v", err)
	}
	closeReq.Header.Set("Authorization", "Bearer "+token)
	closeResp, err := client.Do(closeReq)
	if err != nil {
		t.Fatalf("close console: %v", err)
	}
	closeResp.Body.Close()
	if closeResp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 closing console, got %d", closeResp.StatusCode)
	}
	var reopened struct {
		State   string               `json:"state"`
		Pending []assignments.Change `json:"pending"`
	}
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/access/console", token, nil, http.StatusOK), &reopened)
	if reopened.State != "browsing" || len(reopened.Pending) != 0 {
		t.Fatalf("expected a fresh session after close, got %+v", reopened)
	}

	resp, body = rawGet(t, client, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "role_changes_committed_total 1") {
		t.Fatalf("expected committed counter in metrics, got %d", resp.StatusCode)
	}
}

func TestSeedRolesEndpoint(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	var seeded struct {
		Created int `json:"created"`
	}
	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/seed", token, nil, http.StatusOK), &seeded)
	if seeded.Created != 0 {
		t.Fatalf("expected no roles created for a seeded tenant, got %d", seeded.Created)
	}

	var list []roles.Role
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/roles", token, nil, http.StatusOK), &list)
	for _, role := range list {
		app.Memory.DeleteRole(app.TenantID, role.ID)
	}

	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/seed", token, nil, http.StatusCreated), &seeded)
	if seeded.Created != 4 {
		t.Fatalf("expected 4 default roles created, got %d", seeded.Created)
	}
	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/seed", token, nil, http.StatusOK), &seeded)
	if seeded.Created != 0 {
		t.Fatalf("expected second seed to create nothing, got %d", seeded.Created)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	app, err := server.New(context.Background(), testConfig(config.StoreDriverMemory))
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()
	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	for _, path := range []string{"/api/v1/roles", "/api/v1/permissions", "/api/v1/access/console", "/api/v1/audit/role-changes"} {
		doJSON(t, ts.Client(), http.MethodGet, ts.URL+path, "", nil, http.StatusUnauthorized)
	}
	resp, _ := rawGet(t, ts.Client(), ts.URL+"/readyz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
}

func TestPostgresJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := testConfig(config.StoreDriverPostgres)
	cfg.DatabaseURL = dbURL

	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()
	ts := httptest.NewServer(app.Router)
	defer ts.Close()
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	var catalog []auth.CatalogGroup
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/permissions", token, nil, http.StatusOK), &catalog)
	if len(catalog) != len(auth.Groups()) {
		t.Fatalf("unexpected catalog: %d groups", len(catalog))
	}

	var list []roles.Role
	decode(t, doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/roles", token, nil, http.StatusOK), &list)
	if len(list) < 4 {
		t.Fatalf("expected default roles, got %d", len(list))
	}
	employee := findRole(t, list, auth.RoleEmployee)
	var updated roles.Role
	decode(t, doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/roles/"+employee.ID+"/groups/Reports", token, map[string]any{
		"enabled": !employee.Has(auth.PermReportsView), "expectedVersion": employee.Version,
	}, http.StatusOK), &updated)
	if updated.Version != employee.Version+1 {
		t.Fatalf("expected version bump, got %d -> %d", employee.Version, updated.Version)
	}

	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/jobs/assignment-backfill", token, nil, http.StatusOK)
}

func findRole(t *testing.T, list []roles.Role, name string) roles.Role {
	t.Helper()
	role, ok := roles.FindByName(list, name)
	if !ok {
		t.Fatalf("role %q not found", name)
	}
	return role
}

func containsPermission(list []auth.Permission, perm auth.Permission) bool {
	for _, p := range list {
		if p == perm {
			return true
		}
	}
	return false
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func decode(t *testing.T, env envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("failed to decode data: %v (%s)", err, string(env.Data))
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, want int) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, url, want, resp.StatusCode, string(raw))
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func rawGet(t *testing.T, client *http.Client, url, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, string(raw)
}
