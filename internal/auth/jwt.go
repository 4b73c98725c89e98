package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTTL is how long an operator access token stays valid.
	TokenTTL = 12 * time.Hour

	// Issuer is stamped on every token and required when validating.
	Issuer = "storefront"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a shop operator. OperatorID is the operator's Telegram
// user id, the same id listed in ADMIN_IDS, and is mirrored in Subject.
type Claims struct {
	OperatorID int64  `json:"operator_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(secret string, operatorID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(operatorID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken accepts only HS256 tokens from this issuer that carry an
// expiry and whose subject matches the operator id.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject != strconv.FormatInt(claims.OperatorID, 10) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
