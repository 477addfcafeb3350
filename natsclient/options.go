package natsclient

import "time"

// Option configures optional client settings.
type Option func(*Client)

// WithName sets the client name reported to the server.
func WithName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithMaxReconnects sets the reconnection attempt limit. -1 means
// reconnect forever.
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the pause between reconnection attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

// WithTimeout sets the initial dial timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}
