// Package backend is the capture station's client for the attendance API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/face"
	"staffattend/internal/mutation"
)

// Client calls the attendance API on behalf of one device. Network failures
// and 5xx responses wrap apperrors.ErrBackendUnavailable; other error
// responses are rebuilt from their code.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// OnTokens is called whenever the client obtains a new token pair.
	OnTokens func(auth.TokenPair)

	mu     sync.Mutex
	tokens auth.TokenPair
}

// New creates a client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTokens installs previously stored tokens.
func (c *Client) SetTokens(pair auth.TokenPair) {
	c.mu.Lock()
	c.tokens = pair
	c.mu.Unlock()
}

func (c *Client) setTokens(pair auth.TokenPair) {
	c.SetTokens(pair)
	if c.OnTokens != nil {
		c.OnTokens(pair)
	}
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.AccessToken
}

func (c *Client) refreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.RefreshToken
}

// Register registers deviceID and stores the issued tokens.
func (c *Client) Register(ctx context.Context, deviceID string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	if err := c.send(ctx, http.MethodPost, "/v1/devices/register", "", map[string]string{"device_id": deviceID}, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	c.setTokens(pair)
	return pair, nil
}

// Refresh rotates the stored refresh token.
func (c *Client) Refresh(ctx context.Context) (auth.TokenPair, error) {
	rt := c.refreshToken()
	if rt == "" {
		return auth.TokenPair{}, apperrors.New(apperrors.ErrUnauthorized, "device is not registered")
	}
	var pair auth.TokenPair
	if err := c.send(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt}, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	c.setTokens(pair)
	return pair, nil
}

// Gallery is the set of enrolled embeddings with the server's match settings.
type Gallery struct {
	Candidates []face.Candidate `json:"gallery"`
	Threshold  float64          `json:"threshold"`
	Dim        int              `json:"dim"`
}

// Gallery downloads the enrolled embeddings.
func (c *Client) Gallery(ctx context.Context) (Gallery, error) {
	var g Gallery
	err := c.authed(ctx, http.MethodGet, "/v1/gallery", nil, &g)
	return g, err
}

// Enroll attaches an embedding to a staff member.
func (c *Client) Enroll(ctx context.Context, staffID string, embedding []float32, photoURL string) (attendance.Staff, error) {
	var st attendance.Staff
	body := map[string]any{"embedding": embedding, "photo_url": photoURL}
	err := c.authed(ctx, http.MethodPut, "/v1/staff/"+staffID+"/enrollment", body, &st)
	return st, err
}

// CheckIn inserts an attendance record.
func (c *Client) CheckIn(ctx context.Context, in attendance.CheckIn) (attendance.Record, bool, error) {
	var out struct {
		Record  attendance.Record `json:"record"`
		Created bool              `json:"created"`
	}
	err := c.authed(ctx, http.MethodPost, "/v1/attendance", in, &out)
	return out.Record, out.Created, err
}

// Sync replays a batch of mutations and returns one result per mutation.
func (c *Client) Sync(ctx context.Context, muts []mutation.Mutation) ([]mutation.Result, error) {
	var out struct {
		Results []mutation.Result `json:"results"`
	}
	if err := c.authed(ctx, http.MethodPost, "/v1/sync", map[string]any{"mutations": muts}, &out); err != nil {
		return nil, err
	}
	if len(out.Results) != len(muts) {
		return nil, fmt.Errorf("sync returned %d results for %d mutations", len(out.Results), len(muts))
	}
	return out.Results, nil
}

// Replay sends a single mutation. It satisfies syncqueue.Replayer.
func (c *Client) Replay(ctx context.Context, m mutation.Mutation) error {
	results, err := c.Sync(ctx, []mutation.Mutation{m})
	if err != nil {
		return err
	}
	if r := results[0]; !r.OK {
		return apperrors.FromCode(r.Code, r.Error)
	}
	return nil
}

// authed sends an authenticated request, refreshing the tokens once when the
// access token is rejected.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	err := c.send(ctx, method, path, c.accessToken(), in, out)
	if !errors.Is(err, apperrors.ErrUnauthorized) || c.refreshToken() == "" {
		return err
	}
	if _, rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	return c.send(ctx, method, path, c.accessToken(), in, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.New(apperrors.ErrBackendUnavailable, fmt.Sprintf("backend request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.New(apperrors.ErrBackendUnavailable, fmt.Sprintf("backend error %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return apperrors.FromCode(e.Code, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
