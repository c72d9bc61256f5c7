package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/pkg/models"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrNotActivated   = errors.New("user not activated")
	ErrBanned         = errors.New("user is banned")
	ErrBlacklisted    = errors.New("token is blacklisted")
	ErrInvalidIssuer  = errors.New("invalid issuer")
	ErrNoPublicKey    = errors.New("no public key loaded")
	ErrNotECDSAPubKey = errors.New("public key is not ECDSA")
)

// Blacklist reports revoked users.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

// RedisBlacklist looks users up under prefix+userID.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

// NewRedisBlacklist wraps client.
func NewRedisBlacklist(client *redis.Client, prefix string) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: prefix}
}

// IsBlacklisted implements Blacklist.
func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	issuer    string
	keyURL    string
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	blacklist Blacklist
}

// Claims represents JWT token claims from the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator fetches the public key and refreshes it every
// cfg.PublicKeyRefreshHrs until ctx is done. blacklist may be nil.
func NewJWTValidator(ctx context.Context, cfg config.JWTConfig, blacklist Blacklist) (*JWTValidator, error) {
	v := &JWTValidator{
		issuer:    cfg.Issuer,
		keyURL:    cfg.PublicKeyURL,
		blacklist: blacklist,
	}

	if err := v.RefreshPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	go v.periodicKeyRefresh(ctx, time.Duration(cfg.PublicKeyRefreshHrs)*time.Hour)

	log.Println("JWT validator initialized")
	return v, nil
}

// NewJWTValidatorWithKey builds a validator around a known key.
func NewJWTValidatorWithKey(issuer string, key *ecdsa.PublicKey, blacklist Blacklist) *JWTValidator {
	return &JWTValidator{issuer: issuer, publicKey: key, blacklist: blacklist}
}

// RefreshPublicKey fetches the PEM-encoded ECDSA public key
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	log.Printf("Fetching public key from %s", v.keyURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keyURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	key, err := ParsePublicKey(keyData)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()

	log.Println("Public key refreshed successfully")
	return nil
}

// ParsePublicKey decodes a PEM PKIX ECDSA public key.
func ParsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrNotECDSAPubKey
	}
	return ecdsaKey, nil
}

func (v *JWTValidator) periodicKeyRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				log.Printf("Failed to refresh public key: %v", err)
			}
		}
	}
}

// ValidateToken validates a JWT token and returns the observer it
// identifies. The observer ID is left for the caller to assign.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Observer, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		if v.publicKey == nil {
			return nil, ErrNoPublicKey
		}
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.issuer, claims.Issuer)
	}

	switch claims.Activated {
	case 0:
		return nil, ErrNotActivated
	case -1:
		return nil, ErrBanned
	}

	userID := strconv.FormatInt(claims.UserID, 10)
	if v.blacklist != nil {
		blacklisted, err := v.blacklist.IsBlacklisted(ctx, userID)
		if err != nil {
			// don't fail authentication if Redis is down
			log.Printf("Warning: Failed to check blacklist: %v", err)
		} else if blacklisted {
			return nil, ErrBlacklisted
		}
	}

	return &models.Observer{
		UserID:      userID,
		Username:    claims.Username,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
	}, nil
}

// extractTokenFromHeader extracts the JWT from a WebSocket upgrade request
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := splitAndTrim(protocols, ",")
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return r.URL.Query().Get("token")
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
