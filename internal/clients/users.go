package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// UserDirectory lists the users known to the identity service.
type UserDirectory interface {
	ListUserIds(ctx context.Context) ([]string, error)
}

// UserClient pages through GET {base}/users?cursor=...&limit=...
type UserClient struct {
	baseURL  string
	token    string
	pageSize int
	hc       *http.Client
}

func NewUserClient(baseURL, token string, timeout time.Duration) (*UserClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("user service base URL is required")
	}
	hc, err := NewHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}
	return &UserClient{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, pageSize: 500, hc: hc}, nil
}

type listUsersResponse struct {
	Users []struct {
		Id     string `json:"id"`
		Active bool   `json:"active"`
	} `json:"users"`
	NextCursor string `json:"next_cursor"`
}

// ListUserIds returns the ids of active users.
func (c *UserClient) ListUserIds(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor string
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page listUsersResponse
		if err := DoJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/users?"+q.Encode(), bearer(c.token), nil, &page); err != nil {
			return nil, fmt.Errorf("unable to list users: %w", err)
		}
		for _, u := range page.Users {
			if u.Active && u.Id != "" {
				ids = append(ids, u.Id)
			}
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return ids, nil
		}
		cursor = page.NextCursor
	}
}
