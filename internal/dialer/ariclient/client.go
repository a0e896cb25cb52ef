// Package ariclient implements the controlplane.Client interface against
// an Asterisk REST Interface (ARI) endpoint: commands over HTTP, events
// over a WebSocket stream.
package ariclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/outdial/internal/dialer/controlplane"
)

// Config holds the connection settings for an ARI endpoint.
type Config struct {
	// BaseURL is the ARI root, e.g. "http://127.0.0.1:8088/ari".
	BaseURL  string
	Username string
	Password string

	// App is the Stasis application name. Channels are created into this
	// application and its WebSocket delivers their events.
	App string

	Logger *slog.Logger

	// HTTPTimeout caps a single command round trip in addition to the
	// caller's context deadline.
	HTTPTimeout time.Duration
}

// Client talks to one ARI endpoint. It implements controlplane.Client.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	app      string

	httpClient *http.Client
	dialer     wsDialer
	log        *slog.Logger
}

// New creates a client. It does not touch the network; call Events to
// open the event stream.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.App == "" {
		return nil, fmt.Errorf("application name must be set")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		app:      cfg.App,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		dialer: defaultWSDialer(),
		log:    logger,
	}, nil
}

// CreateChannel allocates a channel toward endpoint inside the client's
// application without dialing it.
func (c *Client) CreateChannel(ctx context.Context, endpoint string) (controlplane.ChannelID, error) {
	body := map[string]string{
		"endpoint": endpoint,
		"app":      c.app,
	}
	var ch wireChannel
	if err := c.post(ctx, "/channels/create", body, &ch, "createChannel", endpoint); err != nil {
		return "", err
	}
	return controlplane.ChannelID(ch.ID), nil
}

// Dial starts outbound setup on a created channel.
func (c *Client) Dial(ctx context.Context, ch controlplane.ChannelID) error {
	path := "/channels/" + url.PathEscape(string(ch)) + "/dial"
	return c.post(ctx, path, nil, nil, "dial", string(ch))
}

// Hangup releases a channel. A channel already gone is not an error.
func (c *Client) Hangup(ctx context.Context, ch controlplane.ChannelID) error {
	path := "/channels/" + url.PathEscape(string(ch))
	return c.del(ctx, path, "hangup", string(ch))
}

// CreateBridge allocates an empty bridge of the given kind.
func (c *Client) CreateBridge(ctx context.Context, kind controlplane.BridgeKind) (controlplane.BridgeID, error) {
	body := map[string]string{
		"type": string(kind),
	}
	var br wireBridge
	if err := c.post(ctx, "/bridges", body, &br, "createBridge", string(kind)); err != nil {
		return "", err
	}
	return controlplane.BridgeID(br.ID), nil
}

// AddChannelToBridge joins a channel into the bridge mix.
func (c *Client) AddChannelToBridge(ctx context.Context, br controlplane.BridgeID, ch controlplane.ChannelID) error {
	path := "/bridges/" + url.PathEscape(string(br)) + "/addChannel"
	body := map[string]string{"channel": string(ch)}
	return c.post(ctx, path, body, nil, "addChannelToBridge", string(br))
}

// RemoveChannelFromBridge detaches a channel from the bridge mix.
func (c *Client) RemoveChannelFromBridge(ctx context.Context, br controlplane.BridgeID, ch controlplane.ChannelID) error {
	path := "/bridges/" + url.PathEscape(string(br)) + "/removeChannel"
	body := map[string]string{"channel": string(ch)}
	return c.post(ctx, path, body, nil, "removeChannelFromBridge", string(br))
}

// StartHoldMusic plays the named music-on-hold class to bridge members.
func (c *Client) StartHoldMusic(ctx context.Context, br controlplane.BridgeID, class string) error {
	path := "/bridges/" + url.PathEscape(string(br)) + "/moh"
	var body map[string]string
	if class != "" {
		body = map[string]string{"mohClass": class}
	}
	return c.post(ctx, path, body, nil, "startHoldMusic", string(br))
}

// StopHoldMusic stops music-on-hold on the bridge.
func (c *Client) StopHoldMusic(ctx context.Context, br controlplane.BridgeID) error {
	path := "/bridges/" + url.PathEscape(string(br)) + "/moh"
	return c.del(ctx, path, "stopHoldMusic", string(br))
}

// DestroyBridge tears the bridge down, ejecting any remaining members.
func (c *Client) DestroyBridge(ctx context.Context, br controlplane.BridgeID) error {
	path := "/bridges/" + url.PathEscape(string(br))
	return c.del(ctx, path, "destroyBridge", string(br))
}

// PlayMedia starts playback of mediaRef on a channel. The returned ID
// correlates the playback's state events.
func (c *Client) PlayMedia(ctx context.Context, ch controlplane.ChannelID, mediaRef string) (controlplane.PlaybackID, error) {
	path := "/channels/" + url.PathEscape(string(ch)) + "/play"
	body := map[string]string{"media": mediaRef}
	var pb wirePlayback
	if err := c.post(ctx, path, body, &pb, "playMedia", string(ch)); err != nil {
		return "", err
	}
	return controlplane.PlaybackID(pb.ID), nil
}

// StartRecording records the bridge mix. ARI keys recordings by name, so
// the name is generated client-side and doubles as the recording ID.
func (c *Client) StartRecording(ctx context.Context, br controlplane.BridgeID, format string, opts controlplane.RecordOptions) (controlplane.RecordingID, error) {
	name := uuid.New().String()
	ifExists := opts.IfExists
	if ifExists == "" {
		ifExists = "fail"
	}
	body := map[string]any{
		"name":     name,
		"format":   format,
		"beep":     opts.Beep,
		"ifExists": ifExists,
	}
	if opts.MaxSeconds > 0 {
		body["maxDurationSeconds"] = opts.MaxSeconds
	}
	path := "/bridges/" + url.PathEscape(string(br)) + "/record"
	if err := c.post(ctx, path, body, nil, "startRecording", string(br)); err != nil {
		return "", err
	}
	return controlplane.RecordingID(name), nil
}

// post performs an HTTP POST request, optionally decoding a JSON response.
func (c *Client) post(ctx context.Context, path string, body, out any, op, entity string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &controlplane.CommandError{Op: op, Entity: entity, Cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, reader)
	if err != nil {
		return &controlplane.CommandError{Op: op, Entity: entity, Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out, op, entity)
}

// del performs an HTTP DELETE request.
func (c *Client) del(ctx context.Context, path, op, entity string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL.String()+path, nil)
	if err != nil {
		return &controlplane.CommandError{Op: op, Entity: entity, Cause: err}
	}
	return c.do(req, nil, op, entity)
}

func (c *Client) do(req *http.Request, out any, op, entity string) error {
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &controlplane.CommandError{Op: op, Entity: entity, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &controlplane.CommandError{
			Op:         op,
			Entity:     entity,
			StatusCode: resp.StatusCode,
			Cause:      causeForStatus(op, resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &controlplane.CommandError{Op: op, Entity: entity, Cause: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func causeForStatus(op string, status int) error {
	if status == http.StatusNotFound {
		return controlplane.ErrEntityNotFound
	}
	if op == "startRecording" {
		return controlplane.ErrRecordingUnavailable
	}
	return fmt.Errorf("unexpected status: %d", status)
}
