package upbit

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// authToken builds the Bearer token for a signed request. The query hash
// must cover the url-decoded form of the exact query string sent.
func authToken(accessKey, secretKey, rawQuery string) (string, error) {
	decoded, err := url.QueryUnescape(rawQuery)
	if err != nil {
		return "", fmt.Errorf("decode query for hashing: %w", err)
	}

	sum := sha512.Sum512([]byte(decoded))

	claims := jwt.MapClaims{
		"access_key":     accessKey,
		"nonce":          uuid.NewString(),
		"query_hash":     hex.EncodeToString(sum[:]),
		"query_hash_alg": "SHA512",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	return token, nil
}
