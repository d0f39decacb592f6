package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrUserNotFound = errors.New("clients: user not found")

// UserProfile is the subset of the users service record used to enrich
// notifications. Lookups are best-effort; callers fall back to token claims.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UsersClient talks to the external users service.
type UsersClient struct {
	baseURL string
	http    *http.Client
}

func NewUsersClient(baseURL string, timeout time.Duration) *UsersClient {
	return &UsersClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *UsersClient) FetchUser(ctx context.Context, userID string) (*UserProfile, error) {
	url := fmt.Sprintf("%s/api/users/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransientError{Op: "building user request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "fetching user", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var profile UserProfile
		if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
			return nil, &TransientError{Op: "decoding user response", Err: err}
		}
		return &profile, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, &TransientError{Op: fmt.Sprintf("users service returned status %d", resp.StatusCode)}
	}
}
