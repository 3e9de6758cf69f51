package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"camwatch/internal/model"
)

// ErrServerUnreachable is the client-perceived network failure: the
// request never produced an HTTP response at all.
var ErrServerUnreachable = errors.New("server unreachable")

// APIClient talks to the camwatch server. It owns the bearer token;
// the controller decides when that token is set or cleared.
type APIClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) Login(ctx context.Context, username string, password string) (model.Session, error) {
	var session model.Session
	err := c.post(ctx, "/login", model.LoginRequest{Username: username, Password: password}, &session)
	if err != nil {
		return model.Session{}, err
	}

	return session, nil
}

func (c *APIClient) Register(ctx context.Context, username string, password string) error {
	return c.post(ctx, "/register", model.RegisterRequest{Username: username, Password: password}, nil)
}

func (c *APIClient) Offer(ctx context.Context, offer model.OfferRequest) (model.AnswerResponse, error) {
	var answer model.AnswerResponse
	if err := c.post(ctx, "/offer", offer, &answer); err != nil {
		return model.AnswerResponse{}, err
	}

	return answer, nil
}

// Ping measures one round trip to the server. Advisory only.
func (c *APIClient) Ping(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	if err := c.get(ctx, "/ping", nil); err != nil {
		return 0, err
	}

	return time.Since(started), nil
}

func (c *APIClient) Status(ctx context.Context) (model.StatusResponse, error) {
	var status model.StatusResponse
	if err := c.get(ctx, "/status", &status); err != nil {
		return model.StatusResponse{}, err
	}

	return status, nil
}

func (c *APIClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *model.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !envelope.Success {
		return apiErrorToSentinel(envelope.Error)
	}

	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}

	return nil
}

// apiErrorToSentinel maps server error codes back onto the shared
// sentinels so the state machine can branch on them.
func apiErrorToSentinel(apiErr *model.APIError) error {
	if apiErr == nil {
		return errors.New("request failed")
	}

	switch apiErr.Code {
	case "INVALID_CREDENTIALS":
		return model.ErrInvalidCredentials
	case "USERNAME_TAKEN":
		return model.ErrUsernameTaken
	case "TOKEN_EXPIRED":
		return model.ErrTokenExpired
	case "TOKEN_INVALID":
		return model.ErrTokenInvalid
	case "FORBIDDEN":
		return model.ErrForbidden
	case "PROTECTED":
		return model.ErrProtected
	case "NOT_FOUND":
		return model.ErrUserNotFound
	case "SOURCE_BUSY", "SIGNALING_FAILED":
		return fmt.Errorf("%w: %s", model.ErrSignalingFailed, apiErr.Message)
	default:
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
}
