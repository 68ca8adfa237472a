package utils

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyKey prefers the key sent in the body and falls back to the
// Idempotency-Key header.
func IdempotencyKey(r *http.Request, fromBody *string) *string {
	if fromBody != nil && strings.TrimSpace(*fromBody) != "" {
		key := strings.TrimSpace(*fromBody)
		return &key
	}
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		return &key
	}
	return nil
}

// PathID reads a positive integer chi URL parameter.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// QueryInt reads an integer query parameter, def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
