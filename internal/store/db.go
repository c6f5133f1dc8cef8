package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// WriteError wraps a failed audit insert. A result whose audit write failed
// must not be reported as successful, so callers treat this as fatal for the
// request.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("persist audit record: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &AuditRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAudit persists a new audit record, assigning the id and UTC
// timestamp. Inserts are serialized so ids stay unique and monotonic under
// concurrent writers.
func (d *Database) CreateAudit(record *AuditRecord) error {
	if record == nil {
		return &WriteError{Err: errors.New("record is nil")}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	record.ID = 0
	record.CreatedAt = time.Now().UTC()
	if err := d.gorm.Create(record).Error; err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// ListByOwner returns the owner's audit records, most recent first. A
// non-positive limit falls back to 5, matching the history view default.
func (d *Database) ListByOwner(ownerID uint, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	var records []AuditRecord
	err := d.gorm.
		Where("user_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetAudit fetches one audit record by id.
func (d *Database) GetAudit(id uint) (*AuditRecord, error) {
	var record AuditRecord
	if err := d.gorm.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// CountAudits returns the total number of audit records.
func (d *Database) CountAudits() (int64, error) {
	var count int64
	if err := d.gorm.Model(&AuditRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateUser inserts a new user account.
func (d *Database) CreateUser(user *User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.TrimSpace(user.Email)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(user).Error
}

// UserByUsername fetches a user account by its unique username.
func (d *Database) UserByUsername(username string) (*User, error) {
	var user User
	err := d.gorm.Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserByID fetches a user account by id.
func (d *Database) UserByID(id uint) (*User, error) {
	var user User
	if err := d.gorm.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
