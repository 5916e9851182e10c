// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName carries the session token between requests.
const CookieName = "auth_token"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrNotInitialized = errors.New("session keys are not initialized")
)

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	mu         sync.RWMutex
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpire is the lifetime of issued tokens; zero means no exp claim.
	tokenExpire time.Duration
)

// Claims is what a session token says about the player.
type Claims struct {
	PlayerID uuid.UUID
	Name     string
}

// Init generates a fresh ed25519 key pair at runtime and sets the token lifetime.
func Init(expire time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	setKeys(priv, pub, expire)
	return nil
}

// InitFromPath reads ed25519 private/public keys from file and sets the token lifetime.
func InitFromPath(privatePath, publicPath string, expire time.Duration) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return errors.New("ed25519 key files have the wrong size")
	}
	setKeys(ed25519.PrivateKey(privateKeyData), ed25519.PublicKey(publicKeyData), expire)
	return nil
}

func setKeys(priv ed25519.PrivateKey, pub ed25519.PublicKey, expire time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	privateKey = priv
	publicKey = pub
	tokenExpire = expire
}

// CreateJWT signs a token with "sub" = player id and "name" = display name.
func CreateJWT(playerID uuid.UUID, name string) (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if privateKey == nil {
		return "", ErrNotInitialized
	}

	claims := jwt.MapClaims{
		"sub":  playerID.String(),
		"name": name,
		"iat":  time.Now().Unix(),
	}
	if tokenExpire != 0 {
		claims["exp"] = time.Now().Add(tokenExpire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns its claims.
func AuthenticateJWT(tokenString string) (Claims, error) {
	mu.RLock()
	key := publicKey
	mu.RUnlock()
	if key == nil {
		return Claims{}, ErrNotInitialized
	}

	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: invalid jwt claims", ErrInvalidToken)
	}
	sub, ok := mc["sub"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: missing sub in jwt", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: malformed sub: %v", ErrInvalidToken, err)
	}
	name, _ := mc["name"].(string)
	return Claims{PlayerID: id, Name: name}, nil
}
