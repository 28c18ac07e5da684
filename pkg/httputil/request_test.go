package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTarget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "trailing whitespace", body: "{\"name\": \"test\"}\n\n"},
		{name: "syntax error", body: `{invalid}`, wantErr: "invalid JSON at offset"},
		{name: "empty body", body: ``, wantErr: "empty body"},
		{name: "truncated", body: `{"name": "te`, wantErr: "truncated body"},
		{name: "unknown field", body: `{"name": "test", "extra": 1}`, wantErr: `unknown field "extra"`},
		{name: "wrong type", body: `{"name": "test", "count": "three"}`, wantErr: "count must be a int"},
		{name: "trailing document", body: `{"name": "test"} {"name": "again"}`, wantErr: "trailing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest decodeTarget

			err := ParseJSON(req, &dest)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestParseJSON_DoesNotEchoBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"name": "secret-token", "count": true}`))
	var dest decodeTarget

	err := ParseJSON(req, &dest)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("bad JSON is 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{invalid}`))
		var dest map[string]string

		assert.False(t, ParseJSONOrError(w, req, &dest))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body is 413", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
		req.Body = http.MaxBytesReader(w, req.Body, 16)
		var dest map[string]string

		assert.False(t, ParseJSONOrError(w, req, &dest))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.JSONEq(t, `{"error":"request body too large"}`, w.Body.String())
	})
}

func TestParsePathStringOrError(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/actors/u-1", nil), map[string]string{"id": "u-1"})

		val, ok := ParsePathStringOrError(w, req, "id")
		assert.True(t, ok)
		assert.Equal(t, "u-1", val)
	})

	for name, vars := range map[string]map[string]string{
		"missing": nil,
		"blank":   {"id": "  "},
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/actors/", nil), vars)

			_, ok := ParsePathStringOrError(w, req, "id")
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "missing path parameter: id")
		})
	}
}

func TestValidateAll(t *testing.T) {
	w := httptest.NewRecorder()
	ok := ValidateAll(w,
		RequireNonEmpty("users", "resource"),
		RequireNonEmpty(" ", "action"),
		RequireNonEmpty("", "tenant_id"),
	)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"action is required"}`, w.Body.String())

	w = httptest.NewRecorder()
	assert.True(t, ValidateAll(w, RequireNonEmpty("users", "resource")))
	assert.Equal(t, 0, w.Body.Len())
}
