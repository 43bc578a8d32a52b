package hamasasdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginKeepsAccessToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hamasa-api/v1/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ml@example.test", body["identifier"])
			json.NewEncoder(w).Encode(map[string]any{"access_token": "abc", "token_type": "bearer", "user": map[string]any{"id": "u1"}})
		case "/hamasa-api/v1/projects/p1/ml-details":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"id": "p1", "title": "Watch", "thematic_areas": []string{"Health"}, "media_sources": []string{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	tokens, err := c.Login(context.Background(), "ml@example.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", tokens.User.ID)

	details, err := c.MLDetails(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, []string{"Health"}, details.ThematicAreas)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/projects/p1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Invalid status transition: draft → active. Allowed transitions: submitted","code":"invalid_transition","context":{"allowed":["submitted"]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BasePath = "/api/"
	_, err := c.SetProjectStatus(context.Background(), "p1", "active", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.Equal(t, []any{"submitted"}, apiErr.Context["allowed"])
}

func TestListProjectsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"count":11,"page":2,"page_size":10,"next":null,"previous":1,"results":[{"id":"p11","status":"active"}]}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).ListProjects(context.Background(), "active", 2)
	require.NoError(t, err)
	assert.Equal(t, 11, page.Count)
	require.NotNil(t, page.Previous)
	assert.Equal(t, 1, *page.Previous)
	assert.Nil(t, page.Next)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "p11", page.Results[0].ID)
}
