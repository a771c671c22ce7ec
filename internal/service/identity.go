package service

import (
	"fmt"

	"quizroom/pkg/jwt"
)

// JWTVerifier validates bearer tokens locally with the shared signing
// secret. It is the identity collaborator behind host re-verification.
type JWTVerifier struct {
	Secret string
}

func (v *JWTVerifier) Verify(token string) (string, error) {
	claims, err := jwt.ValidateToken(token, v.Secret)
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token carries no user id")
	}
	return claims.UserID, nil
}
