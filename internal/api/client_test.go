package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/gateway"
)

func TestGatewayURL(t *testing.T) {
	var gotAuth string
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gateway/index", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for key, vals := range r.URL.Query() {
			gotQuery[key] = vals[0]
		}
		w.Write([]byte(`{"code":0,"message":"ok","data":{"url":"wss://gate.example/ws"}}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret")

	url, err := client.GatewayURL(t.Context(), gateway.URLParams{Compress: true})
	require.NoError(t, err)
	assert.Equal(t, "wss://gate.example/ws", url)
	assert.Equal(t, "Bot secret", gotAuth)
	assert.Equal(t, "1", gotQuery["compress"])
	assert.NotContains(t, gotQuery, "resume")

	url, err = client.GatewayURL(t.Context(), gateway.URLParams{
		Resume:    true,
		SN:        42,
		SessionID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://gate.example/ws", url)
	assert.Equal(t, "1", gotQuery["resume"])
	assert.Equal(t, "42", gotQuery["sn"])
	assert.Equal(t, "abc", gotQuery["session_id"])
	assert.Equal(t, "0", gotQuery["compress"])
}

func TestGatewayURLErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		status int
		body   string
	}{
		"api_error":    {http.StatusOK, `{"code":40101,"message":"invalid token"}`},
		"empty_url":    {http.StatusOK, `{"code":0,"data":{}}`},
		"bad_status":   {http.StatusBadGateway, `oops`},
		"bad_envelope": {http.StatusOK, `not json`},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "secret").GatewayURL(t.Context(), gateway.URLParams{})
			assert.Error(t, err)
		})
	}
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/me", r.URL.Path)
		w.Write([]byte(`{"code":0,"data":{"id":"123","username":"helper","bot":true}}`))
	}))
	defer srv.Close()

	profile, err := New(srv.URL, "secret").Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "123", profile.ID)
	assert.Equal(t, "helper", profile.Username)
	assert.True(t, profile.Bot)
}
