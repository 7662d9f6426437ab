package migrations

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrateStore applies the SQL migrations under migrationFolder to the job
// database. Goose tracks applied versions in its own table, so re-running is
// safe.
func MigrateStore(db *gorm.DB, migrationFolder string) error {
	goose.SetLogger(&gooseLogger{})

	fi, err := os.Stat(migrationFolder)
	if err != nil {
		return errors.Wrapf(err, "failed to open migration folder %s", migrationFolder)
	}
	if !fi.Mode().IsDir() {
		return errors.Errorf("migration path %s is not a folder", migrationFolder)
	}

	goose.SetBaseFS(os.DirFS(migrationFolder))

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := goose.Up(sqlDB, "."); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	return nil
}

// gooseLogger routes goose's output through the global zap logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) { zap.S().Infof(format, v...) }

func (gooseLogger) Fatalf(format string, v ...interface{}) { zap.S().Fatalf(format, v...) }
