package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	rbac "github.com/bohemiyan/scopedrbac"
	"github.com/gofiber/fiber/v2"
)

var testSecret = []byte("test-secret")

type testServer struct {
	app    *fiber.App
	engine *rbac.RBAC
	store  *rbac.MemoryStore
}

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := rbac.NewMemoryStore()
	for _, perm := range rbac.DefaultPermissions {
		store.PutPermission(perm)
	}
	store.PutEmployee(rbac.Employee{ID: "admin", CompanyID: "co-1", Name: "Admin"})
	store.PutEmployee(rbac.Employee{ID: "lead", CompanyID: "co-1", Name: "Lead", BranchID: strPtr("b1")})
	store.PutEmployee(rbac.Employee{ID: "e1", CompanyID: "co-1", Name: "E1", ManagerID: strPtr("lead"), BranchID: strPtr("b1")})
	store.PutEmployee(rbac.Employee{ID: "e2", CompanyID: "co-1", Name: "E2", BranchID: strPtr("b2")})
	store.PutEmployee(rbac.Employee{ID: "admin2", CompanyID: "co-2", Name: "Other admin"})

	engine, err := rbac.New(rbac.Config{Store: store, Directory: store, Catalog: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, boot := range []struct{ admin, company string }{{"admin", "co-1"}, {"admin2", "co-2"}} {
		for _, code := range []string{rbac.PermPermissionsManage, rbac.PermAuditView} {
			_, err := engine.AddUserPermission(context.Background(), rbac.AddGrantInput{
				ActorAdminID:   "system",
				GranteeID:      boot.admin,
				CompanyID:      boot.company,
				PermissionCode: code,
				Scope:          rbac.ScopeCompanyAll,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	Setup(app, engine, testSecret)
	return &testServer{app: app, engine: engine, store: store}
}

func (s *testServer) do(t *testing.T, method, path, actor, company, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if actor != "" {
		token, err := SignToken(testSecret, actor, company, time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("invalid JSON body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestRejectsMissingOrInvalidToken(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/permissions", "", "", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/permissions", nil)
	bad, _ := SignToken([]byte("other-secret"), "admin", "co-1", time.Hour)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bad)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", resp.StatusCode)
	}
}

func TestManagementRequiresPermission(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/v1/users/e1/permissions", "lead", "co-1",
		`{"permissionCode":"LEAVE_VIEW","scope":"SELF"}`)
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/audit", "lead", "co-1", ""); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 on audit for non-admin, got %d", status)
	}
}

func TestGrantAndCheckFlow(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/users/lead/permissions", "admin", "co-1",
		`{"permissionCode":"ATTENDANCE_VIEW","scope":"BRANCH","scopeTarget":"b1"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	if body["scope"] != "BRANCH" || body["scopeTarget"] != "b1" {
		t.Fatalf("unexpected grant %v", body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/access/ATTENDANCE_VIEW/employees/e1", "lead", "co-1", "")
	if status != fiber.StatusOK || body["hasAccess"] != true {
		t.Fatalf("expected access to e1, got %d %v", status, body)
	}
	status, body = s.do(t, http.MethodGet, "/api/v1/access/ATTENDANCE_VIEW/employees/e2", "lead", "co-1", "")
	if status != fiber.StatusOK || body["hasAccess"] != false || body["reason"] != rbac.ReasonOutsideScope {
		t.Fatalf("expected denial for e2, got %d %v", status, body)
	}

	_, body = s.do(t, http.MethodGet, "/api/v1/access/ATTENDANCE_VIEW/employees", "lead", "co-1", "")
	ids, _ := body["employeeIds"].([]interface{})
	if len(ids) != 2 || ids[0] != "e1" || ids[1] != "lead" {
		t.Fatalf("expected [e1 lead], got %v", body["employeeIds"])
	}

	_, body = s.do(t, http.MethodPost, "/api/v1/access/check", "lead", "co-1",
		`{"checks":[{"permissionCode":"ATTENDANCE_VIEW","employeeId":"e2"},{"permissionCode":"ATTENDANCE_VIEW","employeeId":"e1"}]}`)
	results, _ := body["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", body)
	}
	second := results[1].(map[string]interface{})["decision"].(map[string]interface{})
	if second["hasAccess"] != true {
		t.Fatalf("expected second check allowed, got %v", second)
	}

	status, body = s.do(t, http.MethodPost, "/api/v1/users/lead/permissions", "admin", "co-1",
		`{"permissionCode":"ATTENDANCE_VIEW","scope":"BRANCH","scopeTarget":"b1"}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d: %v", status, body)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/users/lead/permissions", "admin", "co-1",
		`{"permissionCode":"NOPE","scope":"SELF"}`); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/users/lead/permissions", "admin", "co-1",
		`{"permissionCode":"LEAVE_VIEW","scope":"DEPARTMENT"}`); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing department, got %d", status)
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/audit?action=GRANT", "admin", "co-1", "")
	entries, _ := body["entries"].([]interface{})
	if status != fiber.StatusOK || len(entries) != 3 {
		t.Fatalf("expected 3 GRANT entries, got %d %v", status, body)
	}
}

func TestEmployeeRoutesUseScopedAccess(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	if _, err := s.engine.AddUserPermission(ctx, rbac.AddGrantInput{
		ActorAdminID: "admin", GranteeID: "lead", CompanyID: "co-1",
		PermissionCode: rbac.PermEmployeeView, Scope: rbac.ScopeDirectReports,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, body := s.do(t, http.MethodGet, "/api/v1/employees/e1", "lead", "co-1", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if emp := body["employee"].(map[string]interface{}); emp["name"] != "E1" {
		t.Fatalf("unexpected employee %v", emp)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/employees/e2", "lead", "co-1", ""); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for e2, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/employees/lead/reports", "lead", "co-1", ""); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 without ORG_CHART_VIEW, got %d", status)
	}
}

func TestReplaceAndRemoveStayWithinCompany(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPut, "/api/v1/users/lead/permissions", "admin", "co-1",
		`{"permissions":[{"permissionCode":"LOCATION_TRACKING_VIEW","scope":"CUSTOM_LIST","employeeIds":["e1"]},{"permissionCode":"LEAVE_VIEW","scope":"SELF"}]}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if added, _ := body["added"].([]interface{}); len(added) != 2 {
		t.Fatalf("expected 2 added, got %v", body)
	}

	perms, err := s.engine.GetUserPermissions(context.Background(), "lead", "co-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var customID string
	for _, up := range perms {
		if up.Grant.Scope == rbac.ScopeCustomList {
			customID = up.Grant.ID
		}
	}
	if customID == "" {
		t.Fatal("expected custom list grant")
	}

	if status, _ := s.do(t, http.MethodDelete, "/api/v1/grants/"+customID, "admin2", "co-2", ""); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for another company's grant, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPut, "/api/v1/grants/"+customID+"/employees", "admin2", "co-2", `{"employeeIds":["admin2"]}`); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for another company's grant, got %d", status)
	}

	status, body = s.do(t, http.MethodPut, "/api/v1/grants/"+customID+"/employees", "admin", "co-1", `{"employeeIds":["e2","e1"]}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if ids, _ := body["employeeIds"].([]interface{}); len(ids) != 2 || ids[0] != "e1" {
		t.Fatalf("expected sorted [e1 e2], got %v", body["employeeIds"])
	}

	if status, _ := s.do(t, http.MethodDelete, "/api/v1/grants/"+customID, "admin", "co-1", ""); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	status, body = s.do(t, http.MethodGet, "/api/v1/users/lead/permissions", "admin", "co-1", "")
	if list, _ := body["permissions"].([]interface{}); status != fiber.StatusOK || len(list) != 1 {
		t.Fatalf("expected one remaining grant, got %d %v", status, body)
	}
}
