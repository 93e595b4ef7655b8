package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims reads the payload segment without verifying the signature.
func DecodeClaims(token string) (jwt.MapClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformedToken, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrMalformedToken, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedToken)
	}
	return claims, nil
}

func Subject(claims jwt.MapClaims) (string, bool) {
	switch value := claims["sub"].(type) {
	case string:
		return value, value != ""
	case float64:
		return fmt.Sprintf("%.0f", value), true
	default:
		return "", false
	}
}
