package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEventNotFound is an authoritative 404 from the events service. It must
// never be conflated with a TransientError: a timeout says nothing about
// whether the event exists.
var ErrEventNotFound = errors.New("clients: event not found")

// TransientError covers network failures, timeouts and upstream 5xx
// responses. Callers decide whether to retry; this client never does.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clients: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("clients: %s", e.Op)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// EventSnapshot is a read-only projection of an event owned by the events
// service. It is fetched fresh before every admission decision and never
// cached.
type EventSnapshot struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Date     string          `json:"date"`
	Location string          `json:"location"`
	Capacity int             `json:"capacity"`
	Price    decimal.Decimal `json:"price"`
}

// EventsClient talks to the external events service.
type EventsClient struct {
	baseURL string
	http    *http.Client
}

func NewEventsClient(baseURL string, timeout time.Duration) *EventsClient {
	return &EventsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchEvent returns the current snapshot for the event, ErrEventNotFound on
// an authoritative 404, or a *TransientError for anything else.
func (c *EventsClient) FetchEvent(ctx context.Context, eventID int64) (*EventSnapshot, error) {
	url := fmt.Sprintf("%s/events/%d", c.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransientError{Op: "building event request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "fetching event", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var snapshot EventSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return nil, &TransientError{Op: "decoding event response", Err: err}
		}
		return &snapshot, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrEventNotFound
	default:
		return nil, &TransientError{Op: fmt.Sprintf("events service returned status %d", resp.StatusCode)}
	}
}
