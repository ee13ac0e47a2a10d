package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for unique index conflicts.
const pgUniqueViolation = "23505"

// GormStore is the Postgres-backed Store, Directory and Catalog.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the engine's tables.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Employee{}, &Permission{}, &Grant{}, &AuditLog{})
}

func (s *GormStore) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	return listGrants(s.db.WithContext(ctx), filter)
}

func (s *GormStore) GetGrant(ctx context.Context, id string) (*Grant, error) {
	return getGrant(s.db.WithContext(ctx), id)
}

func (s *GormStore) ListAuditLogs(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error) {
	return listAuditLogs(s.db.WithContext(ctx), companyID, q)
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	return listGrants(t.db, filter)
}

func (t *gormTx) GetGrant(ctx context.Context, id string) (*Grant, error) {
	return getGrant(t.db, id)
}

func (t *gormTx) ListAuditLogs(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error) {
	return listAuditLogs(t.db, companyID, q)
}

// LockGrantee takes a transaction-scoped advisory lock on the grantee, which
// also works when the grantee has no grant rows to lock yet.
func (t *gormTx) LockGrantee(ctx context.Context, granteeID, companyID string) error {
	return t.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "user_permissions:"+companyID+":"+granteeID).Error
}

func (t *gormTx) CreateGrant(ctx context.Context, g *Grant) error {
	if err := t.db.Create(g).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (t *gormTx) DeleteGrant(ctx context.Context, id string) error {
	res := t.db.Where("id = ?", id).Delete(&Grant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: grant %q", ErrNotFound, id)
	}
	return nil
}

func (t *gormTx) UpdateGrantEmployees(ctx context.Context, id string, employeeIDs []string) error {
	res := t.db.Model(&Grant{}).Where("id = ?", id).
		Update("assigned_employee_ids", pq.StringArray(employeeIDs))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: grant %q", ErrNotFound, id)
	}
	return nil
}

func (t *gormTx) AppendAudit(ctx context.Context, entry *AuditLog) error {
	return t.db.Create(entry).Error
}

func listGrants(db *gorm.DB, filter GrantFilter) ([]Grant, error) {
	query := db.Order("created_at ASC, id ASC")
	if filter.GranteeUserID != "" {
		query = query.Where("grantee_user_id = ?", filter.GranteeUserID)
	}
	if filter.CompanyID != "" {
		query = query.Where("company_id = ?", filter.CompanyID)
	}
	if filter.PermissionCode != "" {
		query = query.Where("permission_code = ?", filter.PermissionCode)
	}

	var grants []Grant
	if err := query.Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

func getGrant(db *gorm.DB, id string) (*Grant, error) {
	var g Grant
	if err := db.Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: grant %q", ErrNotFound, id)
		}
		return nil, err
	}
	return &g, nil
}

func listAuditLogs(db *gorm.DB, companyID string, q AuditQuery) ([]AuditLog, error) {
	query := db.Where("company_id = ?", companyID).Order("created_at DESC, seq DESC")
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if q.TargetUserID != "" {
		query = query.Where("target_user_id = ?", q.TargetUserID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var entries []AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
