package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DecodeToken reads the payload segment of a compact token into a ClaimSet.
// The signature is not verified. Every failure is reported as an error for
// which IsUnparsable returns true; DecodeToken never panics.
func DecodeToken(token string) (claims ClaimSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = unparsable(fmt.Sprintf("panic: %v", r))
		}
	}()

	segments := strings.Split(strings.TrimSpace(token), ".")
	if len(segments) < 2 {
		return nil, unparsable("expected at least two segments")
	}

	raw, err := decodeSegment(segments[1])
	if err != nil {
		return nil, unparsable(err.Error())
	}

	if !utf8.Valid(raw) {
		return nil, unparsable("payload is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, unparsable("payload is not JSON")
	}

	if dec.More() {
		return nil, unparsable("trailing data after payload")
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, unparsable("payload is not a JSON object")
	}

	return ClaimSet(obj), nil
}

// decodeSegment restores the stripped padding of a base64url segment and
// decodes it. Standard alphabet characters (+ and /) are accepted too.
func decodeSegment(segment string) ([]byte, error) {
	segment = strings.NewReplacer("+", "-", "/", "_").Replace(segment)
	segment = strings.TrimRight(segment, "=")
	if segment == "" {
		return nil, fmt.Errorf("empty payload segment")
	}

	switch len(segment) % 4 {
	case 0:
	case 2:
		segment += "=="
	case 3:
		segment += "="
	default:
		return nil, fmt.Errorf("invalid payload length %d", len(segment))
	}

	return base64.URLEncoding.DecodeString(segment)
}

// EncodeClaims is the inverse of DecodeToken for tooling and tests: it
// produces an unsigned compact token whose payload is claims.
func EncodeClaims(claims ClaimSet) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".", nil
}
