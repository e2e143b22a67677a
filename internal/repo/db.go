// Package repo is the GORM persistence layer: free functions over *gorm.DB
// for posts, metric snapshots, accounts, settings, and idempotency records.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// connPragmas are applied by the driver to every pooled connection, not just
// the first one.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to path. WAL is only requested for
// on-disk databases; memory databases reject it.
func sqliteDSN(path string) string {
	ps := connPragmas
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		ps = append([]string{"journal_mode(WAL)"}, ps...)
	}
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range ps {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens or creates the database at path. path may be a plain file
// path or a "file:" URI such as "file:x?mode=memory&cache=shared".
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory surfaces as an opaque driver error otherwise.
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(8)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnableTracing registers the OpenTelemetry GORM plugin so every query emits
// a span under the caller's trace.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates every table the scheduler uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.Post{},
		&domain.Metric{},
		&domain.Setting{},
		&domain.Idempotency{},
		&domain.Feedback{},
	)
}
