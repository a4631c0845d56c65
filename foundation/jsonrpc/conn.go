package jsonrpc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Capability describes what the transport of a connection can carry.
type Capability int

// Set of connection capabilities.
const (
	RequestOnly Capability = iota
	Push
)

// String implements the fmt.Stringer interface.
func (c Capability) String() string {
	switch c {
	case RequestOnly:
		return "request-only"
	case Push:
		return "push"
	}
	return "unknown"
}

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("connection closed")

// WriteFunc writes one encoded message to the transport.
type WriteFunc func(msg []byte) error

// Conn represents the transport a call arrived on. A push connection owns
// the subscriptions created over it and releases them when closed.
type Conn struct {
	ID         string
	Capability Capability

	mu      sync.Mutex
	write   WriteFunc
	subs    map[string]func()
	onReply []func()
	closed  bool
}

// NewConn constructs a request-only connection.
func NewConn() *Conn {
	return &Conn{
		ID:         uuid.NewString(),
		Capability: RequestOnly,
	}
}

// NewPushConn constructs a connection able to carry notifications. Writes
// through the connection are serialized.
func NewPushConn(write WriteFunc) *Conn {
	return &Conn{
		ID:         uuid.NewString(),
		Capability: Push,
		write:      write,
		subs:       make(map[string]func()),
	}
}

// Write sends the encoded message over the connection.
func (c *Conn) Write(msg []byte) error {
	if c.write == nil {
		return ErrNotificationsUnsupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	return c.write(msg)
}

// OnReply registers a function to run once the response to the request
// being served has been written by Reply.
func (c *Conn) OnReply(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onReply = append(c.onReply, fn)
}

// Reply writes the response of a request and then runs the functions
// registered while serving it.
func (c *Conn) Reply(msg []byte) error {
	err := c.Write(msg)

	c.mu.Lock()
	fns := c.onReply
	c.onReply = nil
	c.mu.Unlock()

	if err != nil {
		return err
	}

	for _, fn := range fns {
		fn()
	}

	return nil
}

// Notify pushes a value for the specified subscription.
func (c *Conn) Notify(subscription string, result any) error {
	n := Notification{
		Version: Version,
		Method:  SubscriptionMethod,
		Params: SubscriptionResult{
			Subscription: subscription,
			Result:       result,
		},
	}

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return c.Write(data)
}

// Track records a subscription owned by this connection along with the
// function releasing it.
func (c *Conn) Track(id string, release func()) error {
	if c.Capability != Push {
		return ErrNotificationsUnsupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	c.subs[id] = release
	return nil
}

// Untrack releases the subscription. It reports false when the subscription
// isn't owned by this connection.
func (c *Conn) Untrack(id string) bool {
	c.mu.Lock()
	release, exists := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if !exists {
		return false
	}

	release()
	return true
}

// Subscriptions returns the number of live subscriptions.
func (c *Conn) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.subs)
}

// Close releases every subscription of the connection. Later writes fail.
func (c *Conn) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.closed = true
	c.mu.Unlock()

	for _, release := range subs {
		release()
	}
}
