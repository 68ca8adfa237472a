package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKey(t *testing.T) {
	body := "  from-body "
	blank := " "

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Nil(t, IdempotencyKey(r, nil))
	assert.Nil(t, IdempotencyKey(r, &blank))

	r.Header.Set(IdempotencyHeader, "from-header")
	assert.Equal(t, "from-header", *IdempotencyKey(r, nil))
	assert.Equal(t, "from-body", *IdempotencyKey(r, &body))
}

func TestPathID(t *testing.T) {
	withParam := func(v string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", v)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	id, ok := PathID(withParam("15"), "id")
	assert.True(t, ok)
	assert.Equal(t, int64(15), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, ok := PathID(withParam(bad), "id")
		assert.False(t, ok, bad)
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=50&offset=x", nil)

	v, err := QueryInt(r, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	v, err = QueryInt(r, "page", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = QueryInt(r, "offset", 0)
	assert.Error(t, err)
}
