package domain

import (
	"encoding/base64"
	"strconv"
)

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PageRequest carries the pagination inputs of a list call. PageToken is
// opaque to clients; internally it is a base64 offset.
type PageRequest struct {
	MaxResults int
	PageToken  string
}

// Offset decodes the page token. Empty or garbage tokens restart from the
// first page rather than erroring.
func (p PageRequest) Offset() int {
	if p.PageToken == "" {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Limit clamps the requested page size into [1, MaxPageSize].
func (p PageRequest) Limit() int {
	switch {
	case p.MaxResults <= 0:
		return DefaultPageSize
	case p.MaxResults > MaxPageSize:
		return MaxPageSize
	default:
		return p.MaxResults
	}
}

// EncodePageToken wraps an offset in an opaque token, or "" for the
// first page.
func EncodePageToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// NextPageToken returns the token for the page after (offset, limit), or
// "" when total is exhausted.
func NextPageToken(offset, limit int, total int64) string {
	next := offset + limit
	if int64(next) >= total {
		return ""
	}
	return EncodePageToken(next)
}
