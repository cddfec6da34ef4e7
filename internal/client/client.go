package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/refunda-ai/refunda/internal/api"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 8 << 10

	defaultBaseURL = "http://127.0.0.1:8790"
)

// Client communicates with the daemon HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New initialises a client from the environment. REFUNDA_BASE_URL
// overrides the default daemon address and REFUNDA_API_TOKEN supplies
// the bearer token when the daemon requires one.
func New() (*Client, error) {
	base := strings.TrimSpace(os.Getenv("REFUNDA_BASE_URL"))
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if u.Host == "" {
		return nil, errors.New("client: base URL missing host")
	}

	token := strings.TrimSpace(os.Getenv("REFUNDA_API_TOKEN"))
	return NewWithOptions(u.String(), token), nil
}

// NewWithOptions constructs a client from explicit parameters.
func NewWithOptions(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		token:      strings.TrimSpace(token),
	}
}

// BaseURL returns the base HTTP URL the client is configured to use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the bearer token configured for the client, if any.
func (c *Client) Token() string {
	return c.token
}

// Status fetches the daemon status summary.
func (c *Client) Status() (api.DaemonStatusDTO, error) {
	var status api.DaemonStatusDTO
	if err := c.getJSON("/daemon/status", &status); err != nil {
		return api.DaemonStatusDTO{}, fmt.Errorf("daemon status: %w", err)
	}
	return status, nil
}

// ShutdownDaemon requests a graceful daemon shutdown via the HTTP API.
func (c *Client) ShutdownDaemon() error {
	resp, err := c.do(http.MethodPost, "/daemon/shutdown", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shutdown daemon: %w", readAPIError(resp))
	}
	return nil
}

// CreateSession starts a new refund session.
func (c *Client) CreateSession(inputSource string) (api.SessionDTO, error) {
	resp, err := c.do(http.MethodPost, "/sessions", api.CreateSessionRequest{InputSource: inputSource})
	if err != nil {
		return api.SessionDTO{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return api.SessionDTO{}, fmt.Errorf("create session: %w", readAPIError(resp))
	}

	var dto api.SessionDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return api.SessionDTO{}, fmt.Errorf("decode session response: %w", err)
	}
	return dto, nil
}

// ListSessions returns all sessions known to the daemon.
func (c *Client) ListSessions() ([]api.SessionDTO, error) {
	var sessions []api.SessionDTO
	if err := c.getJSON("/sessions", &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession fetches a single session by ID.
func (c *Client) GetSession(id string) (api.SessionDTO, error) {
	var dto api.SessionDTO
	if err := c.getJSON("/sessions/"+url.PathEscape(id), &dto); err != nil {
		return api.SessionDTO{}, fmt.Errorf("get session: %w", err)
	}
	return dto, nil
}

// SendMessage submits one caller utterance to a session and returns the
// agent's reply.
func (c *Client) SendMessage(id, text string) (api.TurnReplyDTO, error) {
	resp, err := c.do(http.MethodPost, "/sessions/"+url.PathEscape(id)+"/messages", api.TurnRequest{Text: text})
	if err != nil {
		return api.TurnReplyDTO{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.TurnReplyDTO{}, fmt.Errorf("send message: %w", readAPIError(resp))
	}

	var reply api.TurnReplyDTO
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return api.TurnReplyDTO{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// Conversation fetches the transcript of a session.
func (c *Client) Conversation(id string) (api.ConversationDTO, error) {
	var conv api.ConversationDTO
	if err := c.getJSON("/sessions/"+url.PathEscape(id)+"/conversation", &conv); err != nil {
		return api.ConversationDTO{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// StopSession ends a running session.
func (c *Client) StopSession(id string) error {
	resp, err := c.do(http.MethodDelete, "/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop session: %w", readAPIError(resp))
	}
	return nil
}

// ListDecisions returns persisted decisions, newest first. limit <= 0
// uses the daemon default.
func (c *Client) ListDecisions(limit int) ([]api.DecisionRecordDTO, error) {
	path := "/decisions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var records []api.DecisionRecordDTO
	if err := c.getJSON(path, &records); err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return records, nil
}

// LatestDecision returns the most recent persisted decision.
func (c *Client) LatestDecision() (api.DecisionRecordDTO, error) {
	var rec api.DecisionRecordDTO
	if err := c.getJSON("/decisions/latest", &rec); err != nil {
		return api.DecisionRecordDTO{}, fmt.Errorf("latest decision: %w", err)
	}
	return rec, nil
}

// ListArtifacts returns saved artifact files, optionally filtered by kind.
func (c *Client) ListArtifacts(kind string) ([]api.ArtifactDTO, error) {
	path := "/artifacts"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var list []api.ArtifactDTO
	if err := c.getJSON(path, &list); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return list, nil
}

// LatestArtifact returns the most recent artifact, optionally filtered
// by kind.
func (c *Client) LatestArtifact(kind string) (api.ArtifactDTO, error) {
	path := "/artifacts/latest"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var info api.ArtifactDTO
	if err := c.getJSON(path, &info); err != nil {
		return api.ArtifactDTO{}, fmt.Errorf("latest artifact: %w", err)
	}
	return info, nil
}

// Metrics fetches the Prometheus exposition text.
func (c *Client) Metrics() (string, error) {
	resp, err := c.do(http.MethodGet, "/metrics", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metrics: %w", readAPIError(resp))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("metrics: read body: %w", err)
	}
	return string(body), nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachToken(req)

	return c.httpClient.Do(req)
}

func (c *Client) attachToken(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		return errors.New(resp.Status)
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return errors.New(msg)
			}
		}
	}
	return errors.New(trimmed)
}
