package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, Directory and Catalog. Transactions run
// one at a time against a copy of the grant state that replaces the live state
// only on commit.
type MemoryStore struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *memState

	dirMu       sync.RWMutex
	employees   map[string]Employee
	permissions map[string]Permission
}

type memState struct {
	grants map[string]Grant
	audit  []AuditLog
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:       &memState{grants: make(map[string]Grant)},
		employees:   make(map[string]Employee),
		permissions: make(map[string]Permission),
	}
}

// PutEmployee inserts or replaces a directory entry.
func (m *MemoryStore) PutEmployee(emp Employee) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	m.employees[emp.ID] = emp
}

// DeleteEmployee removes a directory entry.
func (m *MemoryStore) DeleteEmployee(id string) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	delete(m.employees, id)
}

// PutPermission inserts or replaces a catalog entry.
func (m *MemoryStore) PutPermission(perm Permission) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	m.permissions[perm.Code] = perm
}

// CreatePermission adds a catalog entry, failing with ErrConflict if the code exists.
func (m *MemoryStore) CreatePermission(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.Code == "" {
		return ErrInvalidInput
	}
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	if _, ok := m.permissions[perm.Code]; ok {
		return fmt.Errorf("%w: permission %q", ErrConflict, perm.Code)
	}
	m.permissions[perm.Code] = *perm
	return nil
}

// UpdatePermission replaces an existing catalog entry.
func (m *MemoryStore) UpdatePermission(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.Code == "" {
		return ErrInvalidInput
	}
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	if _, ok := m.permissions[perm.Code]; !ok {
		return fmt.Errorf("%w: permission %q", ErrNotFound, perm.Code)
	}
	m.permissions[perm.Code] = *perm
	return nil
}

// Directory

func (m *MemoryStore) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return nil, fmt.Errorf("%w: employee %q", ErrNotFound, id)
	}
	return &emp, nil
}

func (m *MemoryStore) ListEmployeesByManager(ctx context.Context, managerID, companyID string) ([]Employee, error) {
	return m.filterEmployees(companyID, func(e *Employee) bool {
		return e.ManagerID != nil && *e.ManagerID == managerID
	}), nil
}

func (m *MemoryStore) ListEmployeesByBranch(ctx context.Context, branchID, companyID string) ([]Employee, error) {
	return m.filterEmployees(companyID, func(e *Employee) bool {
		return e.BranchID != nil && *e.BranchID == branchID
	}), nil
}

func (m *MemoryStore) ListEmployeesByDepartment(ctx context.Context, departmentID, companyID string) ([]Employee, error) {
	return m.filterEmployees(companyID, func(e *Employee) bool {
		return e.DepartmentID != nil && *e.DepartmentID == departmentID
	}), nil
}

func (m *MemoryStore) ListEmployeesByCompany(ctx context.Context, companyID string) ([]Employee, error) {
	return m.filterEmployees(companyID, func(*Employee) bool { return true }), nil
}

func (m *MemoryStore) filterEmployees(companyID string, keep func(*Employee) bool) []Employee {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	var out []Employee
	for _, emp := range m.employees {
		if emp.CompanyID == companyID && keep(&emp) {
			out = append(out, emp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Catalog

func (m *MemoryStore) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	perm, ok := m.permissions[code]
	if !ok {
		return nil, fmt.Errorf("%w: permission %q", ErrNotFound, code)
	}
	return &perm, nil
}

func (m *MemoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	out := make([]Permission, 0, len(m.permissions))
	for _, perm := range m.permissions {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) ListPermissionsByCategory(ctx context.Context) (map[string][]Permission, error) {
	perms, _ := m.ListPermissions(ctx)
	return groupByCategory(perms), nil
}

// Store

func (m *MemoryStore) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listGrants(filter), nil
}

func (m *MemoryStore) GetGrant(ctx context.Context, id string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getGrant(id)
}

func (m *MemoryStore) ListAuditLogs(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listAudit(companyID, q), nil
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

type memTx struct {
	state *memState
}

func (t *memTx) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	return t.state.listGrants(filter), nil
}

func (t *memTx) GetGrant(ctx context.Context, id string) (*Grant, error) {
	return t.state.getGrant(id)
}

func (t *memTx) ListAuditLogs(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error) {
	return t.state.listAudit(companyID, q), nil
}

// LockGrantee is a no-op: MemoryStore already runs one transaction at a time.
func (t *memTx) LockGrantee(ctx context.Context, granteeID, companyID string) error {
	return nil
}

func (t *memTx) CreateGrant(ctx context.Context, g *Grant) error {
	for _, existing := range t.state.grants {
		if existing.GranteeUserID == g.GranteeUserID && existing.CompanyID == g.CompanyID && existing.Key() == g.Key() {
			return fmt.Errorf("%w: grant %s", ErrConflict, existing.ID)
		}
	}
	if _, ok := t.state.grants[g.ID]; ok {
		return fmt.Errorf("%w: grant %s", ErrConflict, g.ID)
	}
	t.state.grants[g.ID] = copyGrant(*g)
	return nil
}

func (t *memTx) DeleteGrant(ctx context.Context, id string) error {
	if _, ok := t.state.grants[id]; !ok {
		return fmt.Errorf("%w: grant %q", ErrNotFound, id)
	}
	delete(t.state.grants, id)
	return nil
}

func (t *memTx) UpdateGrantEmployees(ctx context.Context, id string, employeeIDs []string) error {
	g, ok := t.state.grants[id]
	if !ok {
		return fmt.Errorf("%w: grant %q", ErrNotFound, id)
	}
	g.AssignedEmployeeIDs = append([]string(nil), employeeIDs...)
	t.state.grants[id] = g
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *AuditLog) error {
	entry.Seq = int64(len(t.state.audit) + 1)
	t.state.audit = append(t.state.audit, *entry)
	return nil
}

func (s *memState) clone() *memState {
	grants := make(map[string]Grant, len(s.grants))
	for id, g := range s.grants {
		grants[id] = copyGrant(g)
	}
	// Cap the slice so appends in the copy never write into the live array.
	return &memState{grants: grants, audit: s.audit[:len(s.audit):len(s.audit)]}
}

func (s *memState) listGrants(filter GrantFilter) []Grant {
	var out []Grant
	for _, g := range s.grants {
		if filter.GranteeUserID != "" && g.GranteeUserID != filter.GranteeUserID {
			continue
		}
		if filter.CompanyID != "" && g.CompanyID != filter.CompanyID {
			continue
		}
		if filter.PermissionCode != "" && g.PermissionCode != filter.PermissionCode {
			continue
		}
		out = append(out, copyGrant(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memState) getGrant(id string) (*Grant, error) {
	g, ok := s.grants[id]
	if !ok {
		return nil, fmt.Errorf("%w: grant %q", ErrNotFound, id)
	}
	g = copyGrant(g)
	return &g, nil
}

func (s *memState) listAudit(companyID string, q AuditQuery) []AuditLog {
	var matched []AuditLog
	for _, e := range s.audit {
		if e.CompanyID != companyID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.TargetUserID != "" && e.TargetUserID != q.TargetUserID {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Seq > matched[j].Seq
	})

	if q.Offset >= len(matched) {
		return []AuditLog{}
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched
}

func copyGrant(g Grant) Grant {
	if g.AssignedEmployeeIDs != nil {
		g.AssignedEmployeeIDs = append([]string(nil), g.AssignedEmployeeIDs...)
	}
	return g
}

func groupByCategory(perms []Permission) map[string][]Permission {
	out := make(map[string][]Permission)
	for _, perm := range perms {
		out[perm.Category] = append(out[perm.Category], perm)
	}
	return out
}
