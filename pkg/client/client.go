// Package client provides a minimal SDK for talking to a single CacheForge
// server over its line-oriented text protocol.
//
// Basic usage:
//
//	c, err := client.Dial("localhost:6380")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Set("user:123", "alice")
//	value, ok, err := c.Get("user:123")
//	deleted, err := c.Del("user:123")
package client

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cacheforge/cacheforge/pkg/config"
	"github.com/cacheforge/cacheforge/pkg/protocol"
)

// Client is a single connection to one CacheForge server. It is not
// safe for concurrent use by multiple goroutines; callers that need
// concurrency should use one Client per goroutine or add their own
// locking.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to address using default client settings.
func Dial(address string) (*Client, error) {
	cfg := config.DefaultClientConfig()
	cfg.Address = address
	return DialWithConfig(cfg)
}

// DialWithConfig connects using an explicit ClientConfig.
func DialWithConfig(cfg *config.ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	timeout := time.Duration(cfg.ConnTimeoutSec) * time.Second
	conn, err := net.DialTimeout("tcp", cfg.Address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping checks connectivity to the server.
func (c *Client) Ping() error {
	line, err := c.roundTrip("PING\n")
	if err != nil {
		return err
	}
	if line != "+PONG" {
		return fmt.Errorf("unexpected reply to PING: %q", line)
	}
	return nil
}

// Set stores value under key with no expiration.
func (c *Client) Set(key, value string) error {
	line, err := c.roundTrip(fmt.Sprintf("SET %s %s\n", quoteArg(key), quoteArg(value)))
	if err != nil {
		return err
	}
	return expectOK(line)
}

// Get retrieves the value stored under key. ok is false if the key does
// not exist or has expired.
func (c *Client) Get(key string) (value string, ok bool, err error) {
	line, err := c.roundTrip(fmt.Sprintf("GET %s\n", quoteArg(key)))
	if err != nil {
		return "", false, err
	}
	if line == "$nil" {
		return "", false, nil
	}
	v, err := parseBulkString(line)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Del removes key, reporting whether it existed.
func (c *Client) Del(key string) (bool, error) {
	line, err := c.roundTrip(fmt.Sprintf("DEL %s\n", quoteArg(key)))
	if err != nil {
		return false, err
	}
	n, err := parseInteger(line)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Expire sets a new TTL, in seconds, on an existing key. Reports whether
// the TTL was applied: false if the key does not exist or seconds is not
// positive.
func (c *Client) Expire(key string, seconds int64) (bool, error) {
	line, err := c.roundTrip(fmt.Sprintf("EXPIRE %s %d\n", quoteArg(key), seconds))
	if err != nil {
		return false, err
	}
	n, err := parseInteger(line)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TTL returns the remaining seconds before key expires, -1 if key has no
// expiration, or -2 if key does not exist.
func (c *Client) TTL(key string) (int64, error) {
	line, err := c.roundTrip(fmt.Sprintf("TTL %s\n", quoteArg(key)))
	if err != nil {
		return 0, err
	}
	return parseInteger(line)
}

// Stats fetches the server's STATS reply and parses it into a map of
// counter name to value.
func (c *Client) Stats() (map[string]uint64, error) {
	line, err := c.roundTrip("STATS\n")
	if err != nil {
		return nil, err
	}
	body, err := parseBulkString(line)
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64)
	for _, field := range strings.Split(body, ",") {
		if field == "" {
			continue
		}
		name, numStr, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			continue
		}
		out[name] = n
	}
	return out, nil
}

// roundTrip writes request and reads back a single reply line (with its
// trailing newline stripped).
func (c *Client) roundTrip(request string) (string, error) {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write([]byte(request)); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func expectOK(line string) error {
	if line == "+OK" {
		return nil
	}
	if msg, ok := strings.CutPrefix(line, "-"); ok {
		return fmt.Errorf("server error: %s", msg)
	}
	return fmt.Errorf("unexpected reply: %q", line)
}

func parseInteger(line string) (int64, error) {
	rest, ok := strings.CutPrefix(line, ":")
	if !ok {
		if msg, ok := strings.CutPrefix(line, "-"); ok {
			return 0, fmt.Errorf("server error: %s", msg)
		}
		return 0, fmt.Errorf("unexpected reply: %q", line)
	}
	return strconv.ParseInt(rest, 10, 64)
}

func parseBulkString(line string) (string, error) {
	rest, ok := strings.CutPrefix(line, "$")
	if !ok {
		if msg, ok := strings.CutPrefix(line, "-"); ok {
			return "", fmt.Errorf("server error: %s", msg)
		}
		return "", fmt.Errorf("unexpected reply: %q", line)
	}
	return rest, nil
}

// quoteArg wraps a wire argument in double quotes whenever it contains
// whitespace that would otherwise split it into multiple tokens, using
// the same escaping the server's append log uses.
func quoteArg(s string) string {
	return protocol.QuoteIfNeeded(s)
}
