package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/driftnote/driftnote/internal/auth"
)

// Note is a single record in the hosted notes table.
type Note struct {
	ID        uuid.UUID
	Title     string
	Body      string
	UpdatedAt time.Time
}

// Client performs CRUD against the records API (PostgREST wire shape under
// /rest/v1). Bearer tokens come from the auth client's ambient session.
type Client struct {
	baseURL string
	anonKey string
	auth    *auth.Client
	client  *http.Client
}

// NewClient creates a records client for the backend at baseURL.
// Pass a test server URL in tests.
func NewClient(baseURL, anonKey string, authClient *auth.Client) *Client {
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		auth:    authClient,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Auth returns the auth client whose ambient session backs this client.
func (c *Client) Auth() *auth.Client { return c.auth }

// List returns the caller's notes, most recently updated first. Row-level
// security on the backend scopes the result to the session's user.
func (c *Client) List(ctx context.Context) ([]Note, error) {
	var raw []noteRecord
	if err := c.do(ctx, http.MethodGet, "/rest/v1/notes?select=*&order=updated_at.desc", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Note, len(raw))
	for i, r := range raw {
		out[i] = r.toNote()
	}
	return out, nil
}

// Create inserts a note with a client-generated id and returns the stored row.
func (c *Client) Create(ctx context.Context, title, body string) (Note, error) {
	rec := noteRecord{ID: uuid.NewString(), Title: title, Body: body}
	var rows []noteRecord
	if err := c.do(ctx, http.MethodPost, "/rest/v1/notes", rec, &rows); err != nil {
		return Note{}, err
	}
	if len(rows) == 0 {
		return rec.toNote(), nil
	}
	return rows[0].toNote(), nil
}

// Update rewrites the title and body of an existing note.
func (c *Client) Update(ctx context.Context, n Note) error {
	payload := map[string]string{"title": n.Title, "body": n.Body}
	return c.do(ctx, http.MethodPatch, notePath(n.ID), payload, nil)
}

// Delete removes a note by id.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, notePath(id), nil, nil)
}

func notePath(id uuid.UUID) string {
	return "/rest/v1/notes?id=eq." + url.QueryEscape(id.String())
}

// do performs one authenticated request. A 401 triggers a single forced
// session refresh and one retry; a second 401 surfaces to the caller, where
// errors.Is(err, auth.ErrUnauthorized) sends the UI back to sign-in.
func (c *Client) do(ctx context.Context, method, path string, payload, target any) error {
	err := c.once(ctx, method, path, payload, target)
	if err == nil || !errors.Is(err, auth.ErrUnauthorized) {
		return err
	}
	if refreshErr := c.auth.ForceRefresh(ctx); refreshErr != nil {
		return err
	}
	return c.once(ctx, method, path, payload, target)
}

func (c *Client) once(ctx context.Context, method, path string, payload, target any) error {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling records API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return auth.ResponseError(resp)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding records response: %w", err)
	}
	return nil
}

// noteRecord is the raw wire shape of a notes row.
type noteRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (r noteRecord) toNote() Note {
	id, _ := uuid.Parse(r.ID)
	updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return Note{ID: id, Title: r.Title, Body: r.Body, UpdatedAt: updated}
}
