package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationPostsCreatedIDIndex   = "2026-09-14_posts_created_at_id_index"
	migrationStripProviderPrefixes = "2026-09-21_strip_provider_prefixes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPostsCreatedIDIndex, apply: createPostsCreatedIDIndex},
		{name: migrationStripProviderPrefixes, apply: stripProviderPrefixes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// createPostsCreatedIDIndex backs the (created_at, id) keyset used by post.list.
func createPostsCreatedIDIndex(db *gorm.DB) error {
	return db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_created_at_id ON posts (created_at, id)").Error
}

// stripProviderPrefixes rewrites rows written before user ids were canonicalised, when
// "google:<sub>" was stored verbatim.
func stripProviderPrefixes(db *gorm.DB) error {
	const prefix = "google:"
	start := len(prefix) + 1
	statements := []string{
		fmt.Sprintf("UPDATE posts SET author_id = substr(author_id, %d) WHERE author_id LIKE '%s%%'", start, prefix),
		fmt.Sprintf("UPDATE comments SET author_id = substr(author_id, %d) WHERE author_id LIKE '%s%%'", start, prefix),
		fmt.Sprintf("UPDATE read_receipts SET user_id = substr(user_id, %d) WHERE user_id LIKE '%s%%'", start, prefix),
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, statement := range statements {
			if err := tx.Exec(statement).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
