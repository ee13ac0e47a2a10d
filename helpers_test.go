package rbac

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

const testCompany = "co-1"

func strPtr(s string) *string { return &s }

// stepClock advances one second per reading so audit order is deterministic.
type stepClock struct {
	ticks atomic.Int64
}

func (c *stepClock) Now() time.Time {
	n := c.ticks.Add(1)
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}

type fixture struct {
	ctx    context.Context
	store  *MemoryStore
	engine *RBAC
}

// newFixture builds an engine over an org chart:
//
//	ceo
//	├── mgr (branch-7, dept-ops)
//	│   ├── a (branch-7, dept-ops)
//	│   │   └── b (branch-9, dept-ops)
//	│   └── c (branch-7, dept-sales)
//	└── d (branch-9, dept-sales)
//
// plus "outsider" in another company.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	for _, perm := range DefaultPermissions {
		store.PutPermission(perm)
	}

	add := func(id, manager, branch, dept string) {
		emp := Employee{ID: id, CompanyID: testCompany, Name: "Name of " + id}
		if manager != "" {
			emp.ManagerID = strPtr(manager)
		}
		if branch != "" {
			emp.BranchID = strPtr(branch)
		}
		if dept != "" {
			emp.DepartmentID = strPtr(dept)
		}
		store.PutEmployee(emp)
	}
	add("ceo", "", "hq", "dept-exec")
	add("mgr", "ceo", "branch-7", "dept-ops")
	add("a", "mgr", "branch-7", "dept-ops")
	add("b", "a", "branch-9", "dept-ops")
	add("c", "mgr", "branch-7", "dept-sales")
	add("d", "ceo", "branch-9", "dept-sales")
	store.PutEmployee(Employee{ID: "outsider", CompanyID: "co-2", Name: "Outsider", ManagerID: strPtr("mgr"), BranchID: strPtr("branch-7")})

	clock := &stepClock{}
	engine, err := New(Config{Store: store, Directory: store, Catalog: store, Now: clock.Now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &fixture{ctx: context.Background(), store: store, engine: engine}
}

func (f *fixture) grant(t *testing.T, grantee, code string, scope ScopeKind, target string, employees ...string) *Grant {
	t.Helper()
	g, err := f.engine.AddUserPermission(f.ctx, AddGrantInput{
		ActorAdminID:        "admin",
		GranteeID:           grantee,
		CompanyID:           testCompany,
		PermissionCode:      code,
		Scope:               scope,
		ScopeTarget:         target,
		AssignedEmployeeIDs: employees,
	})
	if err != nil {
		t.Fatalf("grant %s %s: unexpected error: %v", code, scope, err)
	}
	return g
}

func (f *fixture) auditLen(t *testing.T) int {
	t.Helper()
	entries, err := f.engine.GetAuditLog(f.ctx, testCompany, AuditQuery{Limit: maxAuditPageSize})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return len(entries)
}

func (f *fixture) grantKeys(t *testing.T, grantee string) map[GrantKey]bool {
	t.Helper()
	grants, err := f.store.ListGrants(f.ctx, GrantFilter{GranteeUserID: grantee, CompanyID: testCompany})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := make(map[GrantKey]bool, len(grants))
	for i := range grants {
		keys[grants[i].Key()] = true
	}
	return keys
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// failingStore fails the transaction on the nth CreateGrant.
type failingStore struct {
	*MemoryStore
	failOnCreate int
}

var errInjected = errors.New("injected failure")

func (s *failingStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(tx Tx) error {
		return fn(&failingTx{Tx: tx, remaining: s.failOnCreate})
	})
}

type failingTx struct {
	Tx
	remaining int
}

func (t *failingTx) CreateGrant(ctx context.Context, g *Grant) error {
	t.remaining--
	if t.remaining <= 0 {
		return errInjected
	}
	return t.Tx.CreateGrant(ctx, g)
}
