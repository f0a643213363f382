package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderClientCompleteOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/order-1/complete", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"completed": true})
	}))
	defer srv.Close()

	c, err := NewOrderClient(srv.URL+"/", "secret", time.Second)
	require.NoError(t, err)

	ok, err := c.CompleteOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrderClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewOrderClient(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = c.CompleteOrder(context.Background(), "order-1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestUserClientPagesThroughActiveUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"users":[{"id":"u1","active":true},{"id":"u2","active":false}],"next_cursor":"c2"}`))
		case "c2":
			_, _ = w.Write([]byte(`{"users":[{"id":"u3","active":true}],"next_cursor":""}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	c, err := NewUserClient(srv.URL, "", time.Second)
	require.NoError(t, err)

	ids, err := c.ListUserIds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, ids)
}

func TestNewClientsRequireBaseURL(t *testing.T) {
	_, err := NewOrderClient("", "", time.Second)
	assert.Error(t, err)
	_, err = NewUserClient("", "", time.Second)
	assert.Error(t, err)
}
