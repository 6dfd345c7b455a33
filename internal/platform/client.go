package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// heartbeatInterval is used when the gateway hello omits one.
const heartbeatInterval = 30 * time.Second

// requestTimeout bounds how long a request waits for its response frame.
const requestTimeout = 30 * time.Second

// Client manages a websocket connection to the platform gateway. All
// outbound operations (sends, roster fetches, moderation actions) are
// request/response frames over the same socket, correlated by ID.
type Client struct {
	gatewayURL string
	token      string
	conn       *websocket.Conn
	connMu     sync.Mutex
	msgID      atomic.Int64

	// closing is set by Close so the read loop can tell a deliberate
	// shutdown from a lost connection.
	closing atomic.Bool

	// Response channels keyed by request ID.
	pending   map[int64]chan wsResponse
	pendingMu sync.Mutex

	// Decoded gateway events for the dispatcher.
	events chan Event

	// Community roster, populated by the ready frame and maintained by
	// community_create/community_delete events.
	communities   map[string]Community
	communitiesMu sync.Mutex

	botUser   User
	botUserMu sync.Mutex

	// lastBeat is the UnixNano send time of the most recent heartbeat;
	// latencyNS is the most recent measured round trip.
	lastBeat  atomic.Int64
	latencyNS atomic.Int64

	logger *slog.Logger
}

// wsFrame is the generic gateway frame format.
type wsFrame struct {
	Op    string          `json:"op"`
	ID    int64           `json:"id,omitempty"`
	Type  string          `json:"t,omitempty"`
	OK    bool            `json:"ok,omitempty"`
	Data  json.RawMessage `json:"d,omitempty"`
	Error *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsResponse wraps the result with success/error info for the response channel.
type wsResponse struct {
	OK    bool
	Data  json.RawMessage
	Error *wsError
}

// helloData is the payload of the gateway hello frame.
type helloData struct {
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms"`
}

// readyData is the payload of the gateway ready frame.
type readyData struct {
	User        User        `json:"user"`
	Communities []Community `json:"communities"`
}

// NewClient creates a gateway client. Call [Client.Connect] to dial.
func NewClient(gatewayURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		gatewayURL:  gatewayURL,
		token:       token,
		pending:     make(map[int64]chan wsResponse),
		events:      make(chan Event, 100),
		communities: make(map[string]Community),
		logger:      logger,
	}
}

// Connect dials the gateway, completes the hello/identify/ready
// handshake, and starts the read and heartbeat loops. The ReadyEvent is
// also delivered on the Events channel so the dispatcher observes it in
// arrival order with everything else.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return fmt.Errorf("parse gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	c.logger.Info("connecting to gateway", "url", u.String())

	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024, // history pages can be large
		WriteBufferSize: 64 * 1024,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	// Read hello.
	var hello wsFrame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != "hello" {
		conn.Close()
		return fmt.Errorf("expected hello, got %s", hello.Op)
	}

	interval := heartbeatInterval
	var hd helloData
	if err := json.Unmarshal(hello.Data, &hd); err == nil && hd.HeartbeatIntervalMS > 0 {
		interval = time.Duration(hd.HeartbeatIntervalMS) * time.Millisecond
	}

	// Identify.
	identify := wsFrame{Op: "identify", Data: mustJSON(map[string]string{"token": c.token})}
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	// Read ready.
	var ready wsFrame
	if err := conn.ReadJSON(&ready); err != nil {
		conn.Close()
		return fmt.Errorf("read ready: %w", err)
	}
	if ready.Op == "auth_invalid" {
		conn.Close()
		return fmt.Errorf("authentication failed")
	}
	if ready.Op != "ready" {
		conn.Close()
		return fmt.Errorf("unexpected handshake frame: %s", ready.Op)
	}

	var rd readyData
	if err := json.Unmarshal(ready.Data, &rd); err != nil {
		conn.Close()
		return fmt.Errorf("decode ready: %w", err)
	}

	c.conn = conn
	c.closing.Store(false)
	c.setRoster(rd)
	c.logger.Info("gateway ready",
		"user", rd.User.Name,
		"communities", len(rd.Communities),
	)

	go c.readLoop()
	go c.heartbeatLoop(interval)

	// Deliver ready through the event channel so the dispatcher sees it
	// before any message or command that follows.
	c.events <- ReadyEvent{BotUser: rd.User, Communities: rd.Communities}

	return nil
}

// Close closes the websocket connection. Pending requests fail with a
// send or timeout error; the read loop emits a DisconnectEvent.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.closing.Store(true)
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return c.conn.Close()
	}
	return nil
}

// Events returns the channel of decoded gateway events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Latency returns the most recent heartbeat round-trip time. Zero until
// the first ack arrives.
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latencyNS.Load())
}

// BotUser returns the authenticated agent account.
func (c *Client) BotUser() User {
	c.botUserMu.Lock()
	defer c.botUserMu.Unlock()
	return c.botUser
}

// Communities returns a snapshot of the connected community roster.
// The roster is looked up fresh on every call; membership changes
// between startup and shutdown are reflected.
func (c *Client) Communities() []Community {
	c.communitiesMu.Lock()
	defer c.communitiesMu.Unlock()

	result := make([]Community, 0, len(c.communities))
	for _, g := range c.communities {
		result = append(result, g)
	}
	return result
}

// SendMessage posts content and/or file attachments to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, files []File) error {
	_, err := c.request(ctx, "message_send", map[string]any{
		"channel_id": channelID,
		"content":    content,
		"files":      files,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendDirect posts content to a user's direct-message channel.
func (c *Client) SendDirect(ctx context.Context, userID, content string) error {
	_, err := c.request(ctx, "direct_send", map[string]any{
		"user_id": userID,
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

// RegisterCommands replaces the platform-side structured command set
// with specs (full resync, not incremental). Returns the number of
// commands the platform accepted.
func (c *Client) RegisterCommands(ctx context.Context, specs []CommandSpec) (int, error) {
	data, err := c.request(ctx, "commands_sync", map[string]any{"commands": specs})
	if err != nil {
		return 0, fmt.Errorf("sync commands: %w", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("decode command sync result: %w", err)
	}
	return result.Count, nil
}

// Members fetches the full member roster of a community.
func (c *Client) Members(ctx context.Context, communityID string) ([]Member, error) {
	data, err := c.request(ctx, "members_list", map[string]any{"community_id": communityID})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	var members []Member
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return members, nil
}

// Messages fetches up to limit recent messages from a channel, newest
// first.
func (c *Client) Messages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	data, err := c.request(ctx, "messages_list", map[string]any{
		"channel_id": channelID,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// Kick removes a member from a community.
func (c *Client) Kick(ctx context.Context, communityID, userID, reason string) error {
	_, err := c.request(ctx, "member_kick", map[string]any{
		"community_id": communityID,
		"user_id":      userID,
		"reason":       reason,
	})
	if err != nil {
		return fmt.Errorf("kick member: %w", err)
	}
	return nil
}

// Ban bans a member from a community.
func (c *Client) Ban(ctx context.Context, communityID, userID, reason string) error {
	_, err := c.request(ctx, "member_ban", map[string]any{
		"community_id": communityID,
		"user_id":      userID,
		"reason":       reason,
	})
	if err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	return nil
}

// Unban lifts a ban by user ID.
func (c *Client) Unban(ctx context.Context, communityID, userID string) error {
	_, err := c.request(ctx, "member_unban", map[string]any{
		"community_id": communityID,
		"user_id":      userID,
	})
	if err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	return nil
}

// request sends a request frame and waits for its correlated response.
func (c *Client) request(ctx context.Context, reqType string, payload any) (json.RawMessage, error) {
	id := c.msgID.Add(1)

	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	frame := wsFrame{Op: "request", ID: id, Type: reqType, Data: mustJSON(payload)}

	c.connMu.Lock()
	conn := c.conn
	var err error
	if conn != nil {
		err = conn.WriteJSON(frame)
	} else {
		err = fmt.Errorf("not connected")
	}
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-respCh:
		if !resp.OK {
			if resp.Error != nil {
				return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("timeout waiting for response")
	}
}

// readLoop continuously reads frames from the websocket, routing
// responses to their waiting requests and events to the event channel.
func (c *Client) readLoop() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// A read error during a deliberate Close is the expected end
			// of the session, not a lost connection.
			if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("gateway closed normally")
				c.deliver(DisconnectEvent{})
				return
			}
			c.logger.Error("gateway read error, connection lost", "error", err)
			c.deliver(DisconnectEvent{Err: err})
			return
		}

		switch frame.Op {
		case "response":
			c.pendingMu.Lock()
			if ch, ok := c.pending[frame.ID]; ok {
				ch <- wsResponse{OK: frame.OK, Data: frame.Data, Error: frame.Error}
			}
			c.pendingMu.Unlock()

		case "event":
			c.handleEvent(frame)

		case "heartbeat_ack":
			if sent := c.lastBeat.Load(); sent != 0 {
				c.latencyNS.Store(time.Now().UnixNano() - sent)
			}

		default:
			c.logger.Debug("unhandled gateway frame", "op", frame.Op)
		}
	}
}

// handleEvent decodes a gateway event frame into a tagged Event and
// delivers it. Roster-affecting events also update the community map.
func (c *Client) handleEvent(frame wsFrame) {
	switch frame.Type {
	case "message_create":
		var msg Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			c.logger.Warn("malformed message event", "error", err)
			return
		}
		c.deliver(MessageEvent{Message: msg})

	case "interaction_create":
		var inv Invocation
		if err := json.Unmarshal(frame.Data, &inv); err != nil {
			c.logger.Warn("malformed interaction event", "error", err)
			return
		}
		c.deliver(CommandEvent{Invocation: inv})

	case "community_create", "community_update":
		var g Community
		if err := json.Unmarshal(frame.Data, &g); err != nil {
			c.logger.Warn("malformed community event", "error", err)
			return
		}
		c.communitiesMu.Lock()
		c.communities[g.ID] = g
		c.communitiesMu.Unlock()
		c.logger.Debug("community roster updated", "community", g.Name)

	case "community_delete":
		var g Community
		if err := json.Unmarshal(frame.Data, &g); err != nil {
			return
		}
		c.communitiesMu.Lock()
		delete(c.communities, g.ID)
		c.communitiesMu.Unlock()
		c.logger.Debug("community removed", "community_id", g.ID)

	default:
		c.logger.Debug("unhandled gateway event", "type", frame.Type)
	}
}

// heartbeatLoop sends a heartbeat frame at the negotiated interval
// until the connection is gone.
func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.connMu.Lock()
		conn := c.conn
		var err error
		if conn != nil {
			c.lastBeat.Store(time.Now().UnixNano())
			err = conn.WriteJSON(wsFrame{Op: "heartbeat"})
		}
		c.connMu.Unlock()

		if conn == nil {
			return
		}
		if err != nil {
			c.logger.Debug("heartbeat send failed", "error", err)
			return
		}
	}
}

// deliver pushes an event, dropping it if the dispatcher has fallen
// 100 events behind rather than blocking the read loop. A
// DisconnectEvent is terminal and ends the dispatch loop, so it is
// never dropped; the read loop is done at that point and can afford to
// block until the backlog drains.
func (c *Client) deliver(e Event) {
	if _, terminal := e.(DisconnectEvent); terminal {
		c.events <- e
		return
	}
	select {
	case c.events <- e:
	default:
		c.logger.Warn("event channel full, dropping event")
	}
}

// setRoster replaces the community map and bot user from a ready frame.
func (c *Client) setRoster(rd readyData) {
	c.botUserMu.Lock()
	c.botUser = rd.User
	c.botUserMu.Unlock()

	c.communitiesMu.Lock()
	c.communities = make(map[string]Community, len(rd.Communities))
	for _, g := range rd.Communities {
		c.communities[g.ID] = g
	}
	c.communitiesMu.Unlock()
}

// mustJSON marshals v, panicking on failure. Only used for payloads
// built from our own types, which always marshal.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
