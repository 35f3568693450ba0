package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// BlacklistStore persists revoked JWT hashes in a pure-Go sqlite database,
// matching auth.DatabaseLike so it can be injected via auth.SetDatabase.
type BlacklistStore struct {
	db *sql.DB
}

// NewBlacklistStore opens (creating if necessary) the sqlite database at
// path and ensures its schema exists.
func NewBlacklistStore(path string) (*BlacklistStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open blacklist db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	const schema = `
	CREATE TABLE IF NOT EXISTS token_blacklist (
		token_hash TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create blacklist schema: %w", err)
	}

	return &BlacklistStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BlacklistStore) Close() error {
	return s.db.Close()
}

// BlacklistToken records tokenHash as revoked until expiresAt.
func (s *BlacklistStore) BlacklistToken(tokenHash string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO token_blacklist (token_hash, expires_at) VALUES (?, ?)
		 ON CONFLICT(token_hash) DO UPDATE SET expires_at = excluded.expires_at`,
		tokenHash, expiresAt.Unix(),
	)
	return err
}

// IsTokenBlacklisted reports whether tokenHash is present and its expiry
// has not yet passed.
func (s *BlacklistStore) IsTokenBlacklisted(tokenHash string) bool {
	var expiresAt int64
	err := s.db.QueryRow(`SELECT expires_at FROM token_blacklist WHERE token_hash = ?`, tokenHash).Scan(&expiresAt)
	if err != nil {
		return false
	}
	return time.Now().Before(time.Unix(expiresAt, 0))
}

// CleanExpiredTokens removes rows whose expiry has passed and returns the
// count removed.
func (s *BlacklistStore) CleanExpiredTokens() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM token_blacklist WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetAllBlacklistedTokens returns every non-expired entry, keyed by hash.
func (s *BlacklistStore) GetAllBlacklistedTokens() (map[string]time.Time, error) {
	rows, err := s.db.Query(`SELECT token_hash, expires_at FROM token_blacklist WHERE expires_at > ?`, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var hash string
		var expiresAt int64
		if err := rows.Scan(&hash, &expiresAt); err != nil {
			return nil, err
		}
		out[hash] = time.Unix(expiresAt, 0)
	}
	return out, rows.Err()
}
