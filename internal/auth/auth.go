package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "interview-agent"

	// Keys under which TokenMiddleware stores the validated grant
	identityKey = "participantIdentity"
	roomKey     = "participantRoom"
	metadataKey = "participantMetadata"
)

// Grant describes who may join which room, and with what session configuration
type Grant struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
	// Metadata is the participant's session configuration JSON
	Metadata string `json:"metadata,omitempty"`
}

// Claims represents the JWT claims of a participant access token
type Claims struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
	Metadata string `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// Grant returns the room grant carried by the claims
func (c *Claims) Grant() Grant {
	return Grant{Identity: c.Identity, Room: c.Room, Metadata: c.Metadata}
}

// Config contains token configuration
type Config struct {
	JWTSecret     string
	TokenDuration time.Duration
}

// Auth issues and validates participant access tokens
type Auth struct {
	config Config
}

// New creates a new Auth instance
func New(config Config) *Auth {
	if config.TokenDuration <= 0 {
		config.TokenDuration = time.Hour
	}
	return &Auth{config: config}
}

// GetConfig returns the token configuration
func (a *Auth) GetConfig() Config {
	return a.config
}

// GenerateToken signs an access token for the grant. A grant without an
// identity or room gets a random one.
func (a *Auth) GenerateToken(grant Grant) (string, Grant, error) {
	if grant.Identity == "" {
		grant.Identity = "candidate-" + uuid.NewString()[:8]
	}
	if grant.Room == "" {
		grant.Room = "interview-" + uuid.NewString()
	}

	now := time.Now()
	claims := &Claims{
		Identity: grant.Identity,
		Room:     grant.Room,
		Metadata: grant.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   grant.Identity,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.JWTSecret))
	if err != nil {
		return "", Grant{}, fmt.Errorf("failed to sign token: %v", err)
	}
	return signed, grant, nil
}

// ValidateToken validates a participant access token
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %v", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("failed to extract claims")
	}
	if claims.Identity == "" || claims.Room == "" {
		return nil, errors.New("token carries no room grant")
	}
	return claims, nil
}

// GenerateRandomKey generates a random key for JWT signing
func GenerateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// tokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter since browsers cannot set headers on a
// websocket upgrade.
func tokenFromRequest(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("Authorization header format must be Bearer {token}")
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errors.New("access token is required")
}

// TokenMiddleware rejects requests without a valid access token and stores
// the grant in the context
func (a *Auth) TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid token: %v", err)})
			return
		}

		c.Set(identityKey, claims.Identity)
		c.Set(roomKey, claims.Room)
		c.Set(metadataKey, claims.Metadata)
		c.Next()
	}
}

// GetGrant returns the grant stored by TokenMiddleware
func GetGrant(c *gin.Context) (Grant, bool) {
	identity := c.GetString(identityKey)
	if identity == "" {
		return Grant{}, false
	}
	return Grant{
		Identity: identity,
		Room:     c.GetString(roomKey),
		Metadata: c.GetString(metadataKey),
	}, true
}
