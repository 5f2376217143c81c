package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/quangdang46/DeFi-Wallet/shared/errors"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// AuthMiddleware requires an HS256 bearer token and stores its subject as the user id
func AuthMiddleware(jwtSecret []byte, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				apperrors.WriteJSON(w, apperrors.Unauthorized("bearer token required"))
				return
			}

			userID, err := validateJWTToken(strings.TrimPrefix(authHeader, "Bearer "), jwtSecret)
			if err != nil {
				logger.WithContext(r.Context()).Security("invalid_token", "low", map[string]interface{}{
					"path":   r.URL.Path,
					"reason": err.Error(),
				})
				apperrors.WriteJSON(w, apperrors.Unauthorized("invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), userID)))
		})
	}
}

func validateJWTToken(tokenString string, jwtSecret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}
