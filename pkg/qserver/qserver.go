// Package qserver is a client of the HTTP server of the Bluesky queue
// server, which runs plans remotely on the beamline.
package qserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/fsutil"
	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/plan"
)

var logger = logutil.GetLogger("qserver")

// ErrNoEnvironment matches errors caused by a missing worker environment.
var ErrNoEnvironment = errors.New("worker environment does not exist")

// Error is an error reported by the server, either with an HTTP error
// status or with an unsuccessful response.
type Error struct {
	Path       string
	StatusCode int
	Msg        string
}

func (e *Error) Error() string {
	if e.StatusCode >= 400 {
		return fmt.Sprintf("%s: %d %s: %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Is makes errors.Is(err, ErrNoEnvironment) true for errors about the worker
// environment not existing.
func (e *Error) Is(target error) bool {
	return target == ErrNoEnvironment &&
		strings.Contains(strings.ToLower(e.Msg), "environment does not exist")
}

// Client talks to one queue server.
type Client struct {
	// Recorded as the submitter of the items added. May be empty.
	User string

	base   string
	apiKey string
	http   *http.Client
}

// New creates a client of the server at base, like "http://host:60610".
// An empty apiKey sends no Authorization header.
func New(base, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// FromConfig creates a client from the configuration.
func FromConfig(cfg config.QueueServer) *Client {
	c := New(cfg.URL(), cfg.APIKey, cfg.Timeout)
	c.User = fsutil.UserName()
	return c
}

// Base returns the base URL of the server.
func (c *Client) Base() string { return c.base }

// Status is the state of the queue server.
type Status struct {
	Msg                     string `json:"msg"`
	ManagerState            string `json:"manager_state"`
	ItemsInQueue            int    `json:"items_in_queue"`
	ItemsInHistory          int    `json:"items_in_history"`
	RunningItemUID          string `json:"running_item_uid"`
	WorkerEnvironmentExists bool   `json:"worker_environment_exists"`
	WorkerEnvironmentState  string `json:"worker_environment_state"`
	REState                 string `json:"re_state"`
}

// Status fetches the state of the server.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AllowedPlans returns the names of the plans the user may run, sorted.
func (c *Client) AllowedPlans(ctx context.Context) ([]string, error) {
	var resp struct {
		Plans map[string]json.RawMessage `json:"plans_allowed"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/plans/allowed", nil, &resp); err != nil {
		return nil, err
	}
	return sortedKeys(resp.Plans), nil
}

// AllowedDevices returns the names of the devices the user may use, sorted.
func (c *Client) AllowedDevices(ctx context.Context) ([]string, error) {
	var resp struct {
		Devices map[string]json.RawMessage `json:"devices_allowed"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/devices/allowed", nil, &resp); err != nil {
		return nil, err
	}
	return sortedKeys(resp.Devices), nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// QueuedItem is an item in the queue.
type QueuedItem struct {
	plan.Item
	ItemType string `json:"item_type"`
	UID      string `json:"item_uid,omitempty"`
	User     string `json:"user,omitempty"`
}

// AddItem appends a plan item to the queue and returns it as queued. When
// the worker environment does not exist, it is opened and the item is sent
// again, once.
func (c *Client) AddItem(ctx context.Context, item plan.Item) (*QueuedItem, error) {
	queued, err := c.addItem(ctx, item)
	if !errors.Is(err, ErrNoEnvironment) {
		return queued, err
	}
	logger.Info().Str("plan", item.Name).Msg("opening the worker environment before adding the item again")
	if err := c.OpenEnvironment(ctx); err != nil {
		return nil, err
	}
	return c.addItem(ctx, item)
}

func (c *Client) addItem(ctx context.Context, item plan.Item) (*QueuedItem, error) {
	req := map[string]any{"item": QueuedItem{Item: item, ItemType: "plan", User: c.User}}
	var resp struct {
		Item  QueuedItem `json:"item"`
		QSize int        `json:"qsize"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/queue/item/add", req, &resp); err != nil {
		return nil, err
	}
	logger.Info().Str("plan", item.Name).Str("uid", resp.Item.UID).Int("qsize", resp.QSize).Msg("item added")
	return &resp.Item, nil
}

// Queue returns the items waiting in the queue and the running one, if any.
func (c *Client) Queue(ctx context.Context) ([]QueuedItem, *QueuedItem, error) {
	var resp struct {
		Items   []QueuedItem `json:"items"`
		Running *QueuedItem  `json:"running_item"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/get", nil, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Running != nil && resp.Running.Name == "" {
		resp.Running = nil
	}
	return resp.Items, resp.Running, nil
}

// StartQueue starts executing the queue.
func (c *Client) StartQueue(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/queue/start", nil, nil)
}

// OpenEnvironment opens the worker environment, where plans run.
func (c *Client) OpenEnvironment(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/environment/open", nil, nil)
}

// Sends a request and decodes the response into out, which may be nil.
// Responses carrying "success": false are errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}
	logger.Debug().Str("method", method).Str("path", path).Msg("request")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var envelope struct {
		Success *bool  `json:"success"`
		Msg     string `json:"msg"`
		Detail  any    `json:"detail"`
	}
	// Error bodies are not always JSON.
	jsonErr := json.Unmarshal(data, &envelope)
	if res.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if jsonErr == nil && envelope.Detail != nil {
			msg = fmt.Sprint(envelope.Detail)
		}
		return &Error{Path: path, StatusCode: res.StatusCode, Msg: msg}
	}
	if jsonErr != nil {
		return fmt.Errorf("%s: decode response: %w", path, jsonErr)
	}
	if envelope.Success != nil && !*envelope.Success {
		return &Error{Path: path, StatusCode: res.StatusCode, Msg: envelope.Msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
