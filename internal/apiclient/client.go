// Package apiclient provides the authenticated JSON client for the domain
// CRUD collaborators the experts execute against: lists, calendar,
// reminders, home automation, journal, and people. The collaborators are
// plain REST services; every call is one POST or GET with ISO-8601
// timestamps and a structured error body on failure.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the domain CRUD collaborator APIs on behalf of experts.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Config holds collaborator API client configuration.
type Config struct {
	BaseURL string
	Token   string        // Bearer token, empty for unauthenticated local setups
	Timeout time.Duration // per-request timeout, default: 5s
}

// apiError is the structured error body the collaborators return on 4xx/5xx.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// New creates a collaborator API client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// ListItem is the payload for adding an item to a named list.
type ListItem struct {
	UserID string `json:"user_id"`
	List   string `json:"list"`
	Item   string `json:"item"`
}

// AddListItem appends an item to the named list (e.g. "shopping").
func (c *Client) AddListItem(ctx context.Context, item ListItem) error {
	return c.post(ctx, fmt.Sprintf("/lists/%s/items", item.List), item, nil)
}

// Event is the payload for creating a calendar event.
type Event struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	StartsAt string `json:"starts_at"` // RFC 3339
	AllDay   bool   `json:"all_day,omitempty"`
}

// CreateEvent creates a calendar event.
func (c *Client) CreateEvent(ctx context.Context, ev Event) error {
	return c.post(ctx, "/calendar/events", ev, nil)
}

// Reminder is the payload for creating a reminder.
type Reminder struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	DueAt  string `json:"due_at,omitempty"` // RFC 3339, empty = no specific time
}

// CreateReminder creates a reminder.
func (c *Client) CreateReminder(ctx context.Context, r Reminder) error {
	return c.post(ctx, "/reminders", r, nil)
}

// DeviceCommand is the payload for a home-automation state change.
type DeviceCommand struct {
	UserID string `json:"user_id"`
	Device string `json:"device"`
	State  string `json:"state"` // on, off, or a setpoint like "21C"
}

// SetDeviceState applies a home-automation command.
func (c *Client) SetDeviceState(ctx context.Context, cmd DeviceCommand) error {
	return c.post(ctx, "/home/commands", cmd, nil)
}

// JournalEntry is the payload for creating a journal entry.
type JournalEntry struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Mood   string `json:"mood,omitempty"`
}

// CreateJournalEntry appends a journal entry.
func (c *Client) CreateJournalEntry(ctx context.Context, e JournalEntry) error {
	return c.post(ctx, "/journal/entries", e, nil)
}

// PersonNote is the payload for recording a fact about a person.
type PersonNote struct {
	UserID string `json:"user_id"`
	Person string `json:"person"`
	Note   string `json:"note"`
}

// UpsertPersonNote records a fact about a person, creating the person
// record if needed.
func (c *Client) UpsertPersonNote(ctx context.Context, n PersonNote) error {
	return c.post(ctx, "/people/notes", n, nil)
}

// CalendarSummary is the compact upcoming-events view used for context.
type CalendarSummary struct {
	Upcoming int      `json:"upcoming"`
	Urgent   int      `json:"urgent"`
	Titles   []string `json:"titles"`
}

// GetCalendarSummary fetches the upcoming-events summary for a user.
func (c *Client) GetCalendarSummary(ctx context.Context, userID string) (*CalendarSummary, error) {
	var out CalendarSummary
	if err := c.get(ctx, "/calendar/summary?user_id="+userID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListsSummary is the compact open-items view used for context.
type ListsSummary struct {
	OpenItems int      `json:"open_items"`
	Overdue   int      `json:"overdue"`
	Items     []string `json:"items"`
}

// GetListsSummary fetches the open-items summary for a user.
func (c *Client) GetListsSummary(ctx context.Context, userID string) (*ListsSummary, error) {
	var out ListsSummary
	if err := c.get(ctx, "/lists/summary?user_id="+userID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post issues a JSON POST and treats any non-2xx status as an error,
// surfacing the collaborator's structured error message when present.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apiclient: failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("apiclient: failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apiclient: failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		msg, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(msg, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("apiclient: %s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, ae.Error)
		}
		return fmt.Errorf("apiclient: %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("apiclient: failed to decode response: %w", err)
		}
	}
	return nil
}
