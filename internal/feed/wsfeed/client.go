package wsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/logging"
)

var _ backend.Feed = (*Client)(nil)

// ClientOptions configures NewClient. Every field is optional.
type ClientOptions struct {
	// Token is sent as a bearer token on every dial.
	Token  string
	Logger *log.Logger
	// Retry is the pause between reconnect attempts.
	Retry time.Duration
	// OnError observes transport failures of a subscription.
	OnError func(listID string, err error)
	// OnReconnect runs after a dropped subscription is re-established.
	// Events may have been missed while it was down.
	OnReconnect func(listID string)
	Dialer      *websocket.Dialer
}

// Client subscribes to list feeds served by Handler.
type Client struct {
	base *url.URL
	opts ClientOptions
}

// NewClient targets the server at baseURL (http or https).
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if opts.Retry <= 0 {
		opts.Retry = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &Client{base: u, opts: opts}, nil
}

func (c *Client) endpoint(listID string) string {
	return c.base.JoinPath("lists", listID, "feed").String()
}

func (c *Client) dial(ctx context.Context, listID string) (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.endpoint(listID), hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	return conn, nil
}

// Subscribe dials the feed of listID and delivers its events to handler on
// one goroutine. A dropped connection is redialled until the subscription
// is closed or ctx ends.
func (c *Client) Subscribe(ctx context.Context, listID string, handler func(backend.Event)) (backend.Subscription, error) {
	conn, err := c.dial(ctx, listID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &clientSub{cancel: cancel, done: make(chan struct{}), conn: conn}
	go c.run(ctx, sub, listID, handler)
	return sub, nil
}

func (c *Client) run(ctx context.Context, sub *clientSub, listID string, handler func(backend.Event)) {
	defer close(sub.done)
	conn := sub.conn
	for {
		err := c.pump(conn, handler)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.report(listID, err)

		for conn = nil; conn == nil; {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.Retry):
			}
			conn, err = c.dial(ctx, listID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.report(listID, err)
				conn = nil
			}
		}
		if !sub.swap(conn) {
			_ = conn.Close()
			return
		}
		c.opts.Logger.Info("feed reconnected", "list", listID)
		if c.opts.OnReconnect != nil {
			c.opts.OnReconnect(listID)
		}
	}
}

func (c *Client) pump(conn *websocket.Conn, handler func(backend.Event)) error {
	for {
		var ev backend.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		handler(ev)
	}
}

func (c *Client) report(listID string, err error) {
	if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	c.opts.Logger.Warn("feed dropped", "list", listID, "err", err)
	if c.opts.OnError != nil {
		c.opts.OnError(listID, err)
	}
}

type clientSub struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *clientSub) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

// Close stops delivery and waits for the reader to exit.
func (s *clientSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	<-s.done
	return nil
}
