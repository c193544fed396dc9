package publish

import (
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appJWT creates the RS256 token a GitHub App presents to exchange for an
// installation token. iat is backdated for clock drift; GitHub caps exp at
// ten minutes.
func appJWT(appID int64, now time.Time, key *rsa.PrivateKey) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
