// Package auth implements the panel's single-operator authentication: one
// passcode, verified against an argon2id hash, traded for a short-lived JWT
// that guards the REST API and websocket connections.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/config"
)

// devPasscode applies when no passcode hash is configured. Local desktop
// installs run without an operator-chosen passcode by default.
const devPasscode = "opencab"

type panelClaims struct {
	jwt.RegisteredClaims
}

type AuthService struct {
	logger       *zap.Logger
	hasher       *PasscodeHasher
	passcodeHash string
	secretKey    []byte
	tokenTTL     time.Duration
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	hasher := NewPasscodeHasher()

	passcodeHash := cfg.GetPasscodeHash()
	if passcodeHash == "" {
		var err error
		passcodeHash, err = hasher.HashPasscode(devPasscode)
		if err != nil {
			return nil, fmt.Errorf("failed to hash dev passcode: %w", err)
		}
		logger.Warn("No panel passcode configured, using development default")
	}

	return &AuthService{
		logger:       logger,
		hasher:       hasher,
		passcodeHash: passcodeHash,
		secretKey:    []byte(cfg.GetJWTSecret()),
		tokenTTL:     cfg.TokenTTL,
	}, nil
}

// Login verifies the passcode and issues a session token.
func (a *AuthService) Login(passcode string) (string, error) {
	valid, err := a.hasher.VerifyPasscode(passcode, a.passcodeHash)
	if err != nil || !valid {
		a.logger.Warn("Panel login failed")
		return "", fmt.Errorf("invalid passcode")
	}

	now := time.Now()
	claims := panelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "panel-operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			Issuer:    "opencabbridge",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken checks a session token.
func (a *AuthService) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &panelClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	})

	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}

	return nil
}

// Middleware enforces a valid bearer token on API routes.
func (a *AuthService) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		if err := a.ValidateToken(parts[1]); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
