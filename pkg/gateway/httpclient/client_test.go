package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"clinical store unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"linked_count":2}`))
	}))
	defer srv.Close()

	client := New(time.Second)

	var out struct {
		LinkedCount int `json:"linked_count"`
	}
	require.NoError(t, GetJSON(context.Background(), client, srv.URL+"/ok", &out))
	assert.Equal(t, 2, out.LinkedCount)

	err := GetJSON(context.Background(), client, srv.URL+"/down", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
