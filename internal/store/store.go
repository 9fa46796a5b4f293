// Package store is the document cache: translated documents keyed by a
// fingerprint of the redacted source document and the target language.
// Entries older than the retention window are treated as absent but are
// only removed by Clear or overwritten by a later Store.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultRetention is how long a cached translation stays valid.
const DefaultRetention = 7 * 24 * time.Hour

// Cache is safe for concurrent use. Lookup and Store failures wrap
// internal.ErrCacheIO; callers may treat them as a miss.
type Cache interface {
	Lookup(ctx context.Context, fingerprint string) (json.RawMessage, bool, error)
	Store(ctx context.Context, fingerprint, targetLang string, doc json.RawMessage) error
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*CacheStats, error)
	Close() error
}

// CacheStats summarises the cache contents, expired entries included.
type CacheStats struct {
	TotalTranslations int            `json:"totalTranslations"`
	Languages         map[string]int `json:"languages"`
	CacheSizeBytes    int64          `json:"cacheSizeBytes"`
}

type Config struct {
	Driver    string        `mapstructure:"driver" validate:"oneof=file sqlite mysql postgres"`
	Directory string        `mapstructure:"directory" validate:"required_if=Driver file"`
	DSN       string        `mapstructure:"dsn"`
	Retention time.Duration `mapstructure:"retention" validate:"gt=0"`
}

// Open creates the cache selected by cfg.Driver.
func Open(cfg Config) (Cache, error) {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Directory, retention)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
				return nil, fmt.Errorf("create cache directory: %w", err)
			}
			dsn = filepath.Join(cfg.Directory, "cache.db")
		}
		return NewSQLStore(cfg.Driver, dsn, retention)
	case "mysql", "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("cache dsn required for driver %s", cfg.Driver)
		}
		return NewSQLStore(cfg.Driver, cfg.DSN, retention)
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

// Fingerprint hashes the serialized redacted document together with the
// canonical form of the target language. The document text is normalized
// to NFC so canonically equivalent strings share an entry.
func Fingerprint(doc []byte, targetLang string) string {
	h := sha256.New()
	h.Write([]byte(CanonicalLanguage(targetLang)))
	h.Write([]byte{0})
	h.Write(norm.NFC.Bytes(doc))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalLanguage returns the BCP 47 form of code ("ES-es" becomes
// "es-ES"), or the trimmed lower-cased input when it does not parse.
func CanonicalLanguage(code string) string {
	code = strings.TrimSpace(code)
	if tag, err := language.Parse(code); err == nil {
		return tag.String()
	}
	return strings.ToLower(code)
}

func expired(created, now time.Time, retention time.Duration) bool {
	return now.Sub(created) > retention
}
