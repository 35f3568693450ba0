// Package auth issues and verifies bearer tokens and hashes passwords for
// the HTTP and websocket surfaces.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"marketrouter/logger"
)

const (
	pbkdf2Iterations = 120_000
	pbkdf2SaltLen    = 16
	pbkdf2KeyLen     = 32

	// maxBlacklistEntries bounds the in-memory blacklist cache. Past this,
	// BlacklistToken sweeps expired entries after inserting.
	maxBlacklistEntries = 100_000
)

// JWTSecret signs and verifies issued tokens. Set once at startup via
// SetJWTSecret.
var JWTSecret []byte

// SetJWTSecret installs the signing key used by GenerateJWT/ValidateJWT.
func SetJWTSecret(secret string) {
	JWTSecret = []byte(secret)
}

// Claims are the JWT claims issued on login/register.
type Claims struct {
	Username string `json:"sub"`
	jwt.RegisteredClaims
}

// GenerateJWT issues a signed token for username valid for ttl.
func GenerateJWT(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ValidateJWT parses and verifies tokenString, rejecting it if it has been
// blacklisted (logged out) even though its signature is still valid.
func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if IsTokenBlacklisted(tokenString) {
		return nil, fmt.Errorf("token has been revoked")
	}

	return claims, nil
}

// HashPassword derives a PBKDF2-HMAC-SHA256 key from password with a fresh
// random salt and returns base64(salt || digest).
func HashPassword(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(append(salt, digest...)), nil
}

// CheckPassword verifies password against an encoded hash produced by
// HashPassword, in constant time.
func CheckPassword(password, encoded string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) <= pbkdf2SaltLen {
		return false
	}
	salt := raw[:pbkdf2SaltLen]
	want := raw[pbkdf2SaltLen:]
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, len(want), sha256.New)
	return hmac.Equal(got, want)
}

// DatabaseLike is the persistence interface the token blacklist uses for
// durability across restarts. store.BlacklistStore implements it.
type DatabaseLike interface {
	BlacklistToken(tokenHash string, expiresAt time.Time) error
	IsTokenBlacklisted(tokenHash string) bool
	CleanExpiredTokens() (int64, error)
	GetAllBlacklistedTokens() (map[string]time.Time, error)
}

var (
	blacklistMu sync.RWMutex
	blacklist   = make(map[string]time.Time) // token hash -> expiry
	db          DatabaseLike
)

// SetDatabase injects a persistent backing store for the blacklist.
func SetDatabase(d DatabaseLike) {
	db = d
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BlacklistToken revokes token until exp.
func BlacklistToken(token string, exp time.Time) {
	hash := hashToken(token)

	blacklistMu.Lock()
	blacklist[hash] = exp
	if len(blacklist) > maxBlacklistEntries {
		now := time.Now()
		for t, e := range blacklist {
			if now.After(e) {
				delete(blacklist, t)
			}
		}
		if len(blacklist) > maxBlacklistEntries {
			logger.Log.Warnf("auth: token blacklist size (%d) exceeds limit (%d) after sweep; consider reducing JWT TTL or using a shared persistent store",
				len(blacklist), maxBlacklistEntries)
		}
	}
	blacklistMu.Unlock()

	if db != nil {
		if err := db.BlacklistToken(hash, exp); err != nil {
			logger.Log.Warnf("auth: persist blacklist entry: %v", err)
		}
	}
}

// IsTokenBlacklisted reports whether token has been revoked and not yet
// expired, checking the in-memory cache before falling back to the
// persistent store.
func IsTokenBlacklisted(token string) bool {
	hash := hashToken(token)

	blacklistMu.RLock()
	exp, ok := blacklist[hash]
	blacklistMu.RUnlock()

	if ok {
		if time.Now().After(exp) {
			blacklistMu.Lock()
			delete(blacklist, hash)
			blacklistMu.Unlock()
			return false
		}
		return true
	}

	if db != nil && db.IsTokenBlacklisted(hash) {
		blacklistMu.Lock()
		blacklist[hash] = time.Now().Add(24 * time.Hour)
		blacklistMu.Unlock()
		return true
	}

	return false
}

// LoadBlacklistFromDB warms the in-memory cache from the persistent store
// at startup.
func LoadBlacklistFromDB() {
	if db == nil {
		return
	}
	tokens, err := db.GetAllBlacklistedTokens()
	if err != nil {
		logger.Log.Warnf("auth: load blacklist from db: %v", err)
		return
	}

	blacklistMu.Lock()
	for hash, exp := range tokens {
		blacklist[hash] = exp
	}
	blacklistMu.Unlock()

	logger.Log.Infof("auth: restored %d blacklisted tokens", len(tokens))
}

// StartBlacklistCleaner periodically sweeps expired entries from both the
// in-memory cache and the persistent store.
func StartBlacklistCleaner(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			blacklistMu.Lock()
			for hash, exp := range blacklist {
				if now.After(exp) {
					delete(blacklist, hash)
				}
			}
			blacklistMu.Unlock()

			if db != nil {
				if cleaned, err := db.CleanExpiredTokens(); err != nil {
					logger.Log.Warnf("auth: clean expired tokens: %v", err)
				} else if cleaned > 0 {
					logger.Log.Infof("auth: swept %d expired blacklist entries", cleaned)
				}
			}
		}
	}()
}
