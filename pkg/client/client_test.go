package client_test

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/cacheforge/cacheforge/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer runs a single-connection, scripted stand-in for a CacheForge
// server: it maps an exact request line to a canned reply line.
func fakeServer(t *testing.T, script map[string]string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			reply, ok := script[strings.TrimRight(line, "\r\n")]
			if !ok {
				reply = "-ERR unknown command\n"
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestPing(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{"PING": "+PONG\n"})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping())
}

func TestSetAndGet(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{
		`SET greeting "hello world"`: "+OK\n",
		"GET greeting":               "$hello world\n",
	})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("greeting", "hello world"))

	value, ok, err := c.Get("greeting")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", value)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{"GET missing": "$nil\n"})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDel(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{"DEL key": ":1\n"})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	deleted, err := c.Del("key")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestExpireAndTTL(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{
		"EXPIRE key 30": ":1\n",
		"TTL key":       ":30\n",
	})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Expire("key", 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := c.TTL("key")
	require.NoError(t, err)
	assert.EqualValues(t, 30, ttl)
}

func TestStatsParsesFields(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{
		"STATS": "$total_requests:5,cache_hits:2,cache_misses:3\n",
	})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats["total_requests"])
	assert.EqualValues(t, 2, stats["cache_hits"])
	assert.EqualValues(t, 3, stats["cache_misses"])
}

func TestServerErrorIsSurfaced(t *testing.T) {
	addr, stop := fakeServer(t, map[string]string{
		"GET ": "-ERR wrong number of arguments for 'get' command\n",
	})
	defer stop()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Get("")
	assert.Error(t, err)
}
