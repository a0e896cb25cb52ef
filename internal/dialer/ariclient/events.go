package ariclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebas/outdial/internal/dialer/controlplane"
)

// eventBuffer is the capacity of the channel returned by Events. The
// consumer fans events out to per-session queues without blocking, so the
// buffer only has to absorb scheduling jitter.
const eventBuffer = 256

// wsDialer is the subset of websocket.Dialer used to open the event
// stream. Tests substitute their own implementation.
type wsDialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func defaultWSDialer() wsDialer {
	return websocket.DefaultDialer
}

// Events connects the WebSocket event stream and returns a channel of
// decoded control plane events. The channel closes when the connection
// drops or ctx is canceled. There is no reconnection: a closed stream
// means every in-flight session has lost its event source.
func (c *Client) Events(ctx context.Context) (<-chan controlplane.Event, error) {
	wsURL := c.eventsURL()

	header := http.Header{}
	if c.username != "" {
		header.Set("Authorization", basicAuthHeader(c.username, c.password))
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &controlplane.CommandError{
				Op:         "events",
				StatusCode: resp.StatusCode,
				Cause:      controlplane.ErrNotConnected,
			}
		}
		return nil, &controlplane.CommandError{Op: "events", Cause: err}
	}

	c.log.Info("[ControlPlane] event stream connected", "app", c.app)

	out := make(chan controlplane.Event, eventBuffer)
	go c.readLoop(ctx, conn, out)
	return out, nil
}

// eventsURL derives the WebSocket endpoint from the REST base URL.
func (c *Client) eventsURL() string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/events"
	q := u.Query()
	q.Set("app", c.app)
	q.Set("subscribeAll", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- controlplane.Event) {
	defer close(out)

	// Closing the connection is the only way to unblock ReadMessage.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("[ControlPlane] event stream closed", "error", err)
			}
			return
		}

		ev, ok := c.decodeEvent(data)
		if !ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// wire types mirror the JSON the control plane sends. Only the fields the
// dialer consumes are declared.
type wireChannel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type wireBridge struct {
	ID string `json:"id"`
}

type wirePlayback struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type wireEvent struct {
	Type       string        `json:"type"`
	Timestamp  string        `json:"timestamp"`
	Dialstatus string        `json:"dialstatus"`
	Dialstring string        `json:"dialstring"`
	Peer       *wireChannel  `json:"peer"`
	Channel    *wireChannel  `json:"channel"`
	Playback   *wirePlayback `json:"playback"`
}

// decodeEvent maps one wire message onto a controlplane event. Messages of
// kinds the dialer does not consume return ok=false.
func (c *Client) decodeEvent(data []byte) (controlplane.Event, bool) {
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		c.log.Warn("[ControlPlane] undecodable event", "error", err)
		return nil, false
	}

	ts := parseTimestamp(we.Timestamp)

	switch we.Type {
	case "Dial":
		if we.Peer == nil {
			return nil, false
		}
		return controlplane.DialStatusEvent{
			Dialstring: we.Dialstring,
			Status:     mapDialStatus(we.Dialstatus),
			Peer:       controlplane.ChannelID(we.Peer.ID),
			Time:       ts,
		}, true

	case "ChannelStateChange":
		if we.Channel == nil {
			return nil, false
		}
		return controlplane.ChannelStateChangeEvent{
			Channel: controlplane.ChannelID(we.Channel.ID),
			State:   mapChannelState(we.Channel.State),
			Time:    ts,
		}, true

	case "ChannelDestroyed":
		if we.Channel == nil {
			return nil, false
		}
		return controlplane.ChannelStateChangeEvent{
			Channel: controlplane.ChannelID(we.Channel.ID),
			State:   controlplane.ChannelHungup,
			Time:    ts,
		}, true

	case "PlaybackStarted":
		if we.Playback == nil {
			return nil, false
		}
		return controlplane.PlaybackStateEvent{
			Playback: controlplane.PlaybackID(we.Playback.ID),
			State:    controlplane.PlaybackPlaying,
			Time:     ts,
		}, true

	case "PlaybackFinished":
		if we.Playback == nil {
			return nil, false
		}
		state := controlplane.PlaybackDone
		if we.Playback.State == "failed" {
			state = controlplane.PlaybackFailed
		}
		return controlplane.PlaybackStateEvent{
			Playback: controlplane.PlaybackID(we.Playback.ID),
			State:    state,
			Time:     ts,
		}, true

	default:
		// StasisStart, StasisEnd and friends arrive for every channel in
		// the application; the dialer tracks lifecycle through the events
		// above instead.
		c.log.Debug("[ControlPlane] ignoring event", "type", we.Type)
		return nil, false
	}
}

func mapDialStatus(s string) controlplane.DialStatus {
	switch s {
	case "RINGING", "PROGRESS":
		return controlplane.DialStatusRinging
	case "ANSWER":
		return controlplane.DialStatusAnswer
	case "BUSY":
		return controlplane.DialStatusBusy
	case "NOANSWER":
		return controlplane.DialStatusNoAnswer
	case "CANCEL":
		return controlplane.DialStatusCanceled
	case "CONGESTION":
		return controlplane.DialStatusCongestion
	case "CHANUNAVAIL":
		return controlplane.DialStatusUnavailable
	default:
		return controlplane.DialStatusUnknown
	}
}

func mapChannelState(s string) controlplane.ChannelState {
	switch s {
	case "Down":
		return controlplane.ChannelDown
	case "Rsrvd", "Dialing", "Dialing Offhook", "Pre-ring":
		return controlplane.ChannelDialing
	case "Ring", "Ringing":
		return controlplane.ChannelRinging
	case "Up", "OffHook":
		return controlplane.ChannelAnswered
	case "Busy":
		return controlplane.ChannelFailed
	default:
		return controlplane.ChannelDown
	}
}

// ariTimestampLayout covers the +0000 zone form the control plane emits,
// which RFC 3339 parsing rejects.
const ariTimestampLayout = "2006-01-02T15:04:05.000-0700"

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(ariTimestampLayout, s); err == nil {
		return t
	}
	return time.Now()
}

func basicAuthHeader(user, pass string) string {
	cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return "Basic " + cred
}
