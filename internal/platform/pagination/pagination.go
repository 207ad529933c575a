package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

var (
	// ErrInvalidPageSize is returned when pageSize is not a positive integer.
	ErrInvalidPageSize = errors.New("pagination: invalid pageSize")
	// ErrInvalidPageToken is returned when the supplied page token cannot be decoded.
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Cursor represents the opaque pagination cursor payload.
type Cursor struct {
	Offset int `json:"offset,omitempty"`
}

// Params bundles paging values extracted from a request.
type Params struct {
	PageSize int
	Cursor   Cursor
}

// Parse extracts pageSize and pageToken from the request query string.
func Parse(r *http.Request) (Params, error) {
	params := Params{PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, ErrInvalidPageSize
		}
		if size > DefaultMaxPageSize {
			size = DefaultMaxPageSize
		}
		params.PageSize = size
	}

	cursor, err := DecodeToken(r.URL.Query().Get("pageToken"))
	if err != nil {
		return Params{}, err
	}
	params.Cursor = cursor

	return params, nil
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.Offset <= 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return Cursor{}, ErrInvalidPageToken
	}
	return cursor, nil
}

// NextToken computes the token for the page following the supplied params,
// returning an empty string when the current page was not full.
func NextToken(params Params, returned int) (string, error) {
	if returned < params.PageSize {
		return "", nil
	}
	return EncodeToken(Cursor{Offset: params.Cursor.Offset + returned})
}
