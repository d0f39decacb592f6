package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing   = errors.New("auth: missing bearer token")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: malformed token")
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID string
	Role   string
	Email  string
	Name   string
}

func (i *Identity) IsAdmin() bool {
	return i.Role == "admin"
}

// CanPurchase reports whether the role is allowed to buy tickets.
func (i *Identity) CanPurchase() bool {
	return i.Role == "user" || i.Role == "admin"
}

// Verifier validates HS256 bearer tokens issued by the users service.
type Verifier struct {
	secret []byte
}

// NewVerifier resolves the signing secret once and returns a verifier bound
// to it. With embedded=true the configured value is a wrapper credential
// (a full JWT or a bare base64 JSON segment) whose secretkey claim holds the
// real secret; with embedded=false the value is used as-is.
func NewVerifier(secret string, embedded bool) (*Verifier, error) {
	resolved := secret
	if embedded {
		extracted, err := extractEmbeddedSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("resolving signing secret: %w", err)
		}
		resolved = extracted
	}
	if resolved == "" {
		return nil, errors.New("auth: signing secret is empty")
	}
	return &Verifier{secret: []byte(resolved)}, nil
}

// Verify validates the credential and returns the caller identity. The
// subject id is read from the nameid claim (users-service tokens) with sub as
// fallback.
func (v *Verifier) Verify(credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	subject := stringClaim(claims, "nameid")
	if subject == "" {
		subject = stringClaim(claims, "sub")
	}
	if subject == "" {
		return nil, ErrTokenMalformed
	}

	name := stringClaim(claims, "name")
	if name == "" {
		name = stringClaim(claims, "unique_name")
	}

	return &Identity{
		UserID: subject,
		Role:   stringClaim(claims, "role"),
		Email:  stringClaim(claims, "email"),
		Name:   name,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

// extractEmbeddedSecret decodes one layer of the wrapper credential and pulls
// the real signing secret out of its secretkey claim. Wrappers come in two
// shapes: a full three-segment JWT (the claim lives in the payload segment)
// or a single base64 JSON segment.
func extractEmbeddedSecret(encoded string) (string, error) {
	segment := encoded
	if parts := strings.Split(encoded, "."); len(parts) == 3 {
		segment = parts[1]
	}

	raw, err := decodeBase64Segment(segment)
	if err != nil {
		return "", fmt.Errorf("auth: wrapper credential is not base64: %w", err)
	}

	var claims struct {
		SecretKey string `json:"secretkey"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("auth: wrapper credential is not JSON: %w", err)
	}
	if claims.SecretKey == "" {
		return "", errors.New("auth: wrapper credential has no secretkey claim")
	}
	return claims.SecretKey, nil
}

func decodeBase64Segment(segment string) ([]byte, error) {
	segment = strings.TrimRight(segment, "=")
	if raw, err := base64.RawURLEncoding.DecodeString(segment); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(segment)
}
