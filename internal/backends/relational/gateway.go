package relational

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeat   = 30 * time.Second
	defaultReadTimeout = 60 * time.Second
)

// gatewayMessage is the envelope spoken with the realtime gateway.
type gatewayMessage struct {
	Type    string          `json:"type"`
	Table   string          `json:"table,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GatewayFeed delivers row changes from a websocket gateway that relays the
// database notifications to clients that cannot reach PostgreSQL directly.
type GatewayFeed struct {
	url       string
	session   func() *backends.Session
	log       logging.Logger
	dialer    *websocket.Dialer
	heartbeat time.Duration
	readWait  time.Duration
}

var _ backends.ChangeFeed = (*GatewayFeed)(nil)

// NewGatewayFeed returns a feed for the gateway at url (ws:// or wss://).
// session supplies the bearer token and owner.
func NewGatewayFeed(url string, session func() *backends.Session, log logging.Logger) *GatewayFeed {
	return &GatewayFeed{
		url:       url,
		session:   session,
		log:       logging.OrNop(log).With("feed", "gateway"),
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second, EnableCompression: true},
		heartbeat: defaultHeartbeat,
		readWait:  defaultReadTimeout,
	}
}

// gatewayConn serializes writes; gorilla connections allow one writer.
type gatewayConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *gatewayConn) write(m gatewayMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(m)
}

func (c *gatewayConn) close() {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.ws.Close()
}

func (f *GatewayFeed) currentSession() *backends.Session {
	if f.session == nil {
		return nil
	}
	return f.session()
}

func (f *GatewayFeed) connect(ctx context.Context, list models.ListName) (*gatewayConn, error) {
	s := f.currentSession()
	if s == nil || s.Token == "" {
		return nil, fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	header := http.Header{"Authorization": []string{"Bearer " + s.Token}}

	ws, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: gateway rejected token", common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: gateway dial: %w", common.ErrTransient, err)
	}

	c := &gatewayConn{ws: ws}
	if err := c.write(gatewayMessage{Type: "subscribe", Table: tableName(list)}); err != nil {
		c.close()
		return nil, fmt.Errorf("%w: subscribe: %w", common.ErrTransient, err)
	}
	return c, nil
}

// Subscribe dials the gateway and starts delivering changes of list to h.
func (f *GatewayFeed) Subscribe(ctx context.Context, list models.ListName, h backends.Handler) (backends.Unsubscribe, error) {
	conn, err := f.connect(ctx, list)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go f.run(runCtx, conn, list, h, sub.done)
	f.log.Info(ctx, "subscribed", "table", tableName(list))
	return sub.stop, nil
}

func (f *GatewayFeed) run(ctx context.Context, conn *gatewayConn, list models.ListName, h backends.Handler, done chan struct{}) {
	defer close(done)
	bo := newBackoff(minReconnectDelay, maxReconnectDelay)

	for {
		if conn == nil {
			if !sleepCtx(ctx, bo.next()) {
				return
			}
			c, err := f.connect(ctx, list)
			if err != nil {
				f.log.Warn(ctx, "reconnect failed", "table", tableName(list), "error", err)
				continue
			}
			conn = c
			bo.reset()
		}

		f.serve(ctx, conn, list, h)
		conn.close()
		conn = nil
		if ctx.Err() != nil {
			return
		}
	}
}

// serve reads from conn until it fails or ctx is done, sending heartbeats in
// the background.
func (f *GatewayFeed) serve(ctx context.Context, conn *gatewayConn, list models.ListName, h backends.Handler) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(f.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				// unblock the reader
				_ = conn.ws.SetReadDeadline(time.Now())
				return
			case <-ticker.C:
				if err := conn.write(gatewayMessage{Type: "heartbeat"}); err != nil {
					f.log.Warn(connCtx, "heartbeat failed", "error", err)
					_ = conn.ws.SetReadDeadline(time.Now())
					return
				}
			}
		}
	}()

	for {
		_ = conn.ws.SetReadDeadline(time.Now().Add(f.readWait))
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if connCtx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warn(ctx, "gateway read failed", "table", tableName(list), "error", err)
			}
			return
		}

		var msg gatewayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Warn(ctx, "unparseable gateway message", "error", err)
			continue
		}
		if msg.Type != "change" {
			continue
		}

		owner := ""
		if s := f.currentSession(); s != nil {
			owner = s.OwnerID
		}
		change, ok, err := decodeChange(msg.Payload, list, owner)
		if err != nil {
			f.log.Warn(ctx, "dropping change", "table", tableName(list), "error", err)
			continue
		}
		if ok {
			h(change)
		}
	}
}
