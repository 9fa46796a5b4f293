package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/valpere/cvtran/internal"
)

type dialect struct {
	schema   string
	upsert   string
	sizeExpr string
}

var dialects = map[string]dialect{
	"sqlite": {
		schema: `
	CREATE TABLE IF NOT EXISTS translation_cache (
		fingerprint TEXT PRIMARY KEY,
		language TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_language ON translation_cache(language);`,
		upsert: `INSERT INTO translation_cache (fingerprint, language, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET language = excluded.language, payload = excluded.payload, created_at = excluded.created_at`,
		sizeExpr: "LENGTH(CAST(payload AS BLOB))",
	},
	"postgres": {
		schema: `
	CREATE TABLE IF NOT EXISTS translation_cache (
		fingerprint VARCHAR(128) PRIMARY KEY,
		language VARCHAR(35) NOT NULL,
		payload TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_language ON translation_cache(language);`,
		upsert: `INSERT INTO translation_cache (fingerprint, language, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET language = EXCLUDED.language, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		sizeExpr: "OCTET_LENGTH(payload)",
	},
	"mysql": {
		schema: `
	CREATE TABLE IF NOT EXISTS translation_cache (
		fingerprint VARCHAR(128) PRIMARY KEY,
		language VARCHAR(35) NOT NULL,
		payload MEDIUMTEXT NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_cache_language (language)
	)`,
		upsert: `INSERT INTO translation_cache (fingerprint, language, payload, created_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE language = VALUES(language), payload = VALUES(payload), created_at = VALUES(created_at)`,
		sizeExpr: "LENGTH(payload)",
	},
}

// SQLStore keeps cache entries in a single table. Each Store is one upsert
// statement, so concurrent writers cannot lose each other's entries.
type SQLStore struct {
	db        *sqlx.DB
	dialect   dialect
	retention time.Duration
	now       func() time.Time
}

// NewSQLStore opens driver ("sqlite", "mysql" or "postgres") at dsn and
// creates the cache table if needed.
func NewSQLStore(driver, dsn string, retention time.Duration) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// a single connection keeps writes serialized
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, dialect: d, retention: retention, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

func (s *SQLStore) Lookup(ctx context.Context, fingerprint string) (json.RawMessage, bool, error) {
	var row struct {
		Payload   string `db:"payload"`
		CreatedAt int64  `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT payload, created_at FROM translation_cache WHERE fingerprint = ?`), fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: lookup: %v", internal.ErrCacheIO, err)
	}
	if expired(time.UnixMilli(row.CreatedAt), s.now(), s.retention) {
		return nil, false, nil
	}
	return json.RawMessage(row.Payload), true, nil
}

func (s *SQLStore) Store(ctx context.Context, fingerprint, targetLang string, doc json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.upsert),
		fingerprint, CanonicalLanguage(targetLang), string(doc), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: store: %v", internal.ErrCacheIO, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_cache`)
	if err != nil {
		return 0, fmt.Errorf("%w: clear: %v", internal.ErrCacheIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (s *SQLStore) Stats(ctx context.Context) (*CacheStats, error) {
	var rows []struct {
		Language string `db:"language"`
		Count    int    `db:"count"`
		Size     int64  `db:"size"`
	}
	query := fmt.Sprintf(`SELECT language, COUNT(*) AS count, COALESCE(SUM(%s), 0) AS size
		FROM translation_cache GROUP BY language`, s.dialect.sizeExpr)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: stats: %v", internal.ErrCacheIO, err)
	}

	stats := &CacheStats{Languages: map[string]int{}}
	for _, r := range rows {
		stats.TotalTranslations += r.Count
		stats.Languages[r.Language] = r.Count
		stats.CacheSizeBytes += r.Size
	}
	return stats, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
