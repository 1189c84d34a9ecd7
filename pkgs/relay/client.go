package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// Client connects sessions to a remote relay. Messages are published over HTTP and
// received from a websocket subscription to the room.
type Client struct {
	Logger *zap.Logger
	Addr   *url.URL
	Client *req.Client
	Dialer *websocket.Dialer
}

// NewClient creates a relay client for the relay at addr (http or https URL)
func NewClient(addr string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(addr, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid relay address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay address must be an http(s) URL, got %q", addr)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := req.C()
	// Set timeout for relay responses
	client.SetTimeout(30 * time.Second)
	return &Client{
		Logger: logger,
		Addr:   u,
		Client: client,
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) roomURL(scheme, roomID, method string) string {
	u := *c.Addr
	u.Scheme = scheme
	u.Path = fmt.Sprintf("%s/rooms/%s/%s", c.Addr.Path, url.PathEscape(roomID), method)
	return u.String()
}

// Health checks that the relay is reachable
func (c *Client) Health(ctx context.Context) error {
	u := *c.Addr
	u.Path += "/health_check"
	res, err := c.Client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return ProcessError(err)
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("relay health check returned %d", res.StatusCode)
	}
	return nil
}

// Dial subscribes to the room. It implements board.Dialer.
func (c *Client) Dial(ctx context.Context, roomID string) (board.Channel, error) {
	scheme := "ws"
	if c.Addr.Scheme == "https" {
		scheme = "wss"
	}
	conn, _, err := c.Dialer.DialContext(ctx, c.roomURL(scheme, roomID, "subscribe"), nil)
	if err != nil {
		return nil, ProcessError(err)
	}
	ch := &wsChannel{
		client:   c,
		roomID:   roomID,
		conn:     conn,
		incoming: make(chan *wire.Message, subscriberBuffer),
		done:     make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// publish sends a message to the room and reads the relay response
func (c *Client) publish(ctx context.Context, roomID string, msg *wire.Message) error {
	r := c.Client.R().SetContext(ctx)
	r.SetBodyJsonMarshal(msg)
	res, err := r.Post(c.roomURL(c.Addr.Scheme, roomID, "messages"))
	if err != nil {
		return ProcessError(err)
	}
	resdata := res.Bytes()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		errmsg, parseErr := wire.ParseAsError(resdata)
		if parseErr == nil {
			return fmt.Errorf("relay responded %d: %v", res.StatusCode, errmsg)
		}
		return fmt.Errorf("relay responded %d: %s", res.StatusCode, string(resdata))
	}
	return nil
}

type wsChannel struct {
	client   *Client
	roomID   string
	conn     *websocket.Conn
	incoming chan *wire.Message
	done     chan struct{}
	once     sync.Once
}

func (ch *wsChannel) readLoop() {
	defer close(ch.incoming)
	for {
		msg := &wire.Message{}
		if err := ch.conn.ReadJSON(msg); err != nil {
			select {
			case <-ch.done:
			default:
				ch.client.Logger.Debug("relay subscription ended", zap.String("room", ch.roomID), zap.Error(err))
			}
			return
		}
		select {
		case ch.incoming <- msg:
		case <-ch.done:
			return
		}
	}
}

func (ch *wsChannel) Send(ctx context.Context, msg *wire.Message) error {
	return ch.client.publish(ctx, ch.roomID, msg)
}

func (ch *wsChannel) Incoming() <-chan *wire.Message {
	return ch.incoming
}

func (ch *wsChannel) Close() error {
	var err error
	ch.once.Do(func() {
		close(ch.done)
		err = ch.conn.Close()
	})
	return err
}

// ProcessError makes transport errors readable
func ProcessError(err error) error {
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return fmt.Errorf("the relay is not responding: %w", err)
	}
	if strings.Contains(err.Error(), "no such host") {
		return fmt.Errorf("the relay address is not reachable: %w", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("the relay refused the connection: %w", err)
	}
	return err
}
