package ariclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebas/outdial/internal/dialer/controlplane"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:  baseURL,
		Username: "outdial",
		Password: "secret",
		App:      "outdial",
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func requireLocalListener(t *testing.T) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("local listener unavailable for httptest")
	}
	_ = listener.Close()
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{BaseURL: "ftp://x", App: "outdial"}); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
	if _, err := New(Config{BaseURL: "http://x:8088/ari"}); err == nil {
		t.Fatalf("expected error for missing app name")
	}
}

func TestCreateChannelSendsEndpointAndApp(t *testing.T) {
	requireLocalListener(t)
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/channels/create" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "outdial" || pass != "secret" {
			t.Fatalf("missing or wrong basic auth: %q %q", user, pass)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chan-42","state":"Down"}`)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	ch, err := client.CreateChannel(context.Background(), "SIP/4448")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if ch != "chan-42" {
		t.Fatalf("channel ID = %q, want %q", ch, "chan-42")
	}
	if gotPayload["endpoint"] != "SIP/4448" {
		t.Fatalf("endpoint = %q, want %q", gotPayload["endpoint"], "SIP/4448")
	}
	if gotPayload["app"] != "outdial" {
		t.Fatalf("app = %q, want %q", gotPayload["app"], "outdial")
	}
}

func TestCommandRouting(t *testing.T) {
	requireLocalListener(t)
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantBody   map[string]string
	}{
		{
			name:       "dial",
			call:       func(c *Client) error { return c.Dial(context.Background(), "chan-1") },
			wantMethod: http.MethodPost,
			wantPath:   "/channels/chan-1/dial",
		},
		{
			name:       "hangup",
			call:       func(c *Client) error { return c.Hangup(context.Background(), "chan-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/channels/chan-1",
		},
		{
			name: "createBridge",
			call: func(c *Client) error {
				_, err := c.CreateBridge(context.Background(), controlplane.KindMixing)
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/bridges",
			wantBody:   map[string]string{"type": "mixing"},
		},
		{
			name: "addChannel",
			call: func(c *Client) error {
				return c.AddChannelToBridge(context.Background(), "br-1", "chan-1")
			},
			wantMethod: http.MethodPost,
			wantPath:   "/bridges/br-1/addChannel",
			wantBody:   map[string]string{"channel": "chan-1"},
		},
		{
			name: "removeChannel",
			call: func(c *Client) error {
				return c.RemoveChannelFromBridge(context.Background(), "br-1", "chan-1")
			},
			wantMethod: http.MethodPost,
			wantPath:   "/bridges/br-1/removeChannel",
			wantBody:   map[string]string{"channel": "chan-1"},
		},
		{
			name: "startHoldMusic",
			call: func(c *Client) error {
				return c.StartHoldMusic(context.Background(), "br-1", "default")
			},
			wantMethod: http.MethodPost,
			wantPath:   "/bridges/br-1/moh",
			wantBody:   map[string]string{"mohClass": "default"},
		},
		{
			name:       "stopHoldMusic",
			call:       func(c *Client) error { return c.StopHoldMusic(context.Background(), "br-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/bridges/br-1/moh",
		},
		{
			name:       "destroyBridge",
			call:       func(c *Client) error { return c.DestroyBridge(context.Background(), "br-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/bridges/br-1",
		},
		{
			name: "playMedia",
			call: func(c *Client) error {
				_, err := c.PlayMedia(context.Background(), "chan-1", "sound:welcome")
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/channels/chan-1/play",
			wantBody:   map[string]string{"media": "sound:welcome"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			var gotBody map[string]string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				body, _ := io.ReadAll(r.Body)
				if len(body) > 0 {
					_ = json.Unmarshal(body, &gotBody)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"id":"any-1"}`)
			}))
			t.Cleanup(server.Close)

			if err := tt.call(newTestClient(t, server.URL)); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if gotMethod != tt.wantMethod {
				t.Errorf("method = %s, want %s", gotMethod, tt.wantMethod)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %s, want %s", gotPath, tt.wantPath)
			}
			for k, want := range tt.wantBody {
				if gotBody[k] != want {
					t.Errorf("body[%q] = %q, want %q", k, gotBody[k], want)
				}
			}
		})
	}
}

func TestNotFoundMapsToEntityNotFound(t *testing.T) {
	requireLocalListener(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Channel not found"}`)
	}))
	t.Cleanup(server.Close)

	err := newTestClient(t, server.URL).Hangup(context.Background(), "chan-gone")
	var cmdErr *controlplane.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if !cmdErr.NotFound() {
		t.Fatalf("expected NotFound, got %+v", cmdErr)
	}
	if !errors.Is(err, controlplane.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound in chain, got %v", err)
	}
	if cmdErr.Op != "hangup" || cmdErr.Entity != "chan-gone" {
		t.Fatalf("unexpected op/entity: %q %q", cmdErr.Op, cmdErr.Entity)
	}
}

func TestStartRecordingGeneratesName(t *testing.T) {
	requireLocalListener(t)
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bridges/br-1/record" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"ignored","state":"queued"}`)
	}))
	t.Cleanup(server.Close)

	rec, err := newTestClient(t, server.URL).StartRecording(context.Background(), "br-1", "wav", controlplane.RecordOptions{
		Beep:       true,
		MaxSeconds: 300,
		IfExists:   "overwrite",
	})
	if err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if rec == "" {
		t.Fatalf("expected generated recording ID")
	}
	if gotBody["name"] != string(rec) {
		t.Errorf("name = %v, want %q", gotBody["name"], rec)
	}
	if gotBody["format"] != "wav" {
		t.Errorf("format = %v, want wav", gotBody["format"])
	}
	if gotBody["beep"] != true {
		t.Errorf("beep = %v, want true", gotBody["beep"])
	}
	if gotBody["ifExists"] != "overwrite" {
		t.Errorf("ifExists = %v, want overwrite", gotBody["ifExists"])
	}
	if gotBody["maxDurationSeconds"] != float64(300) {
		t.Errorf("maxDurationSeconds = %v, want 300", gotBody["maxDurationSeconds"])
	}
}

func TestStartRecordingFailureMapsToUnavailable(t *testing.T) {
	requireLocalListener(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(t, server.URL).StartRecording(context.Background(), "br-1", "wav", controlplane.RecordOptions{})
	if !errors.Is(err, controlplane.ErrRecordingUnavailable) {
		t.Fatalf("expected ErrRecordingUnavailable, got %v", err)
	}
}

func TestDialStatusMapping(t *testing.T) {
	tests := []struct {
		wire string
		want controlplane.DialStatus
	}{
		{"RINGING", controlplane.DialStatusRinging},
		{"PROGRESS", controlplane.DialStatusRinging},
		{"ANSWER", controlplane.DialStatusAnswer},
		{"BUSY", controlplane.DialStatusBusy},
		{"NOANSWER", controlplane.DialStatusNoAnswer},
		{"CANCEL", controlplane.DialStatusCanceled},
		{"CONGESTION", controlplane.DialStatusCongestion},
		{"CHANUNAVAIL", controlplane.DialStatusUnavailable},
		{"", controlplane.DialStatusUnknown},
		{"PROCEEDING", controlplane.DialStatusUnknown},
	}
	for _, tt := range tests {
		if got := mapDialStatus(tt.wire); got != tt.want {
			t.Errorf("mapDialStatus(%q) = %v, want %v", tt.wire, got, tt.want)
		}
	}
}

func TestChannelStateMapping(t *testing.T) {
	tests := []struct {
		wire string
		want controlplane.ChannelState
	}{
		{"Down", controlplane.ChannelDown},
		{"Dialing", controlplane.ChannelDialing},
		{"Ring", controlplane.ChannelRinging},
		{"Ringing", controlplane.ChannelRinging},
		{"Up", controlplane.ChannelAnswered},
		{"Busy", controlplane.ChannelFailed},
		{"Whatever", controlplane.ChannelDown},
	}
	for _, tt := range tests {
		if got := mapChannelState(tt.wire); got != tt.want {
			t.Errorf("mapChannelState(%q) = %v, want %v", tt.wire, got, tt.want)
		}
	}
}

func TestParseTimestampAcceptsControlPlaneFormat(t *testing.T) {
	got := parseTimestamp("2026-03-01T10:30:00.123+0000")
	want := time.Date(2026, 3, 1, 10, 30, 0, 123000000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("parseTimestamp = %v, want %v", got, want)
	}
}

func TestEventStreamDecoding(t *testing.T) {
	requireLocalListener(t)
	upgrader := websocket.Upgrader{}
	fixtures := []string{
		`{"type":"Dial","timestamp":"2026-03-01T10:30:00.000+0000","dialstring":"SIP/4448","dialstatus":"ANSWER","peer":{"id":"chan-9","state":"Up"}}`,
		`{"type":"StasisStart","channel":{"id":"chan-9","state":"Up"}}`,
		`{"type":"ChannelStateChange","channel":{"id":"chan-9","state":"Ringing"}}`,
		`{"type":"ChannelDestroyed","channel":{"id":"chan-9","state":"Down"}}`,
		`{"type":"PlaybackStarted","playback":{"id":"pb-3","state":"playing"}}`,
		`{"type":"PlaybackFinished","playback":{"id":"pb-3","state":"done"}}`,
		`{"type":"PlaybackFinished","playback":{"id":"pb-4","state":"failed"}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("app"); got != "outdial" {
			t.Errorf("app query = %q, want outdial", got)
		}
		if got := r.URL.Query().Get("subscribeAll"); got != "true" {
			t.Errorf("subscribeAll query = %q, want true", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "outdial" || pass != "secret" {
			t.Errorf("missing or wrong basic auth on upgrade")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range fixtures {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events, err := newTestClient(t, server.URL).Events(ctx)
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	dial, ok := nextEvent(t, events).(controlplane.DialStatusEvent)
	if !ok {
		t.Fatalf("expected DialStatusEvent first")
	}
	if dial.Peer != "chan-9" || dial.Status != controlplane.DialStatusAnswer {
		t.Fatalf("dial event = %+v", dial)
	}
	if dial.Dialstring != "SIP/4448" {
		t.Fatalf("dialstring = %q, want SIP/4448", dial.Dialstring)
	}
	if dial.At().IsZero() {
		t.Fatalf("expected parsed timestamp")
	}

	state, ok := nextEvent(t, events).(controlplane.ChannelStateChangeEvent)
	if !ok {
		t.Fatalf("expected ChannelStateChangeEvent after skipped StasisStart")
	}
	if state.Channel != "chan-9" || state.State != controlplane.ChannelRinging {
		t.Fatalf("state event = %+v", state)
	}

	destroyed, ok := nextEvent(t, events).(controlplane.ChannelStateChangeEvent)
	if !ok {
		t.Fatalf("expected ChannelStateChangeEvent for destroy")
	}
	if destroyed.State != controlplane.ChannelHungup {
		t.Fatalf("destroyed state = %v, want Hungup", destroyed.State)
	}

	started, ok := nextEvent(t, events).(controlplane.PlaybackStateEvent)
	if !ok {
		t.Fatalf("expected PlaybackStateEvent")
	}
	if started.Playback != "pb-3" || started.State != controlplane.PlaybackPlaying {
		t.Fatalf("playback started = %+v", started)
	}

	finished, ok := nextEvent(t, events).(controlplane.PlaybackStateEvent)
	if !ok {
		t.Fatalf("expected PlaybackStateEvent")
	}
	if finished.State != controlplane.PlaybackDone {
		t.Fatalf("playback finished = %+v", finished)
	}

	failed, ok := nextEvent(t, events).(controlplane.PlaybackStateEvent)
	if !ok {
		t.Fatalf("expected PlaybackStateEvent")
	}
	if failed.Playback != "pb-4" || failed.State != controlplane.PlaybackFailed {
		t.Fatalf("playback failed = %+v", failed)
	}

	// Server handler returns and closes the connection; the stream must
	// close rather than reconnect.
	select {
	case _, open := <-events:
		if open {
			t.Fatalf("expected closed channel after disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream close")
	}
}

func TestEventsCancelClosesStream(t *testing.T) {
	requireLocalListener(t)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := newTestClient(t, server.URL).Events(ctx)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	cancel()

	select {
	case _, open := <-events:
		if open {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream close")
	}
}

func nextEvent(t *testing.T, ch <-chan controlplane.Event) controlplane.Event {
	t.Helper()
	select {
	case ev, open := <-ch:
		if !open {
			t.Fatalf("event stream closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}
