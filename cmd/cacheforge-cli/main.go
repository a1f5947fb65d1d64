// Command cacheforge-cli is a small interactive or one-shot text client
// for talking to a CacheForge server, grounded in the original project's
// cache_cli connectivity-check tool but extended to the full command set.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cacheforge/cacheforge/pkg/client"
	"github.com/spf13/cobra"
)

func main() {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:          "cacheforge-cli [command ...]",
		Short:        "Talk to a CacheForge server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := fmt.Sprintf("%s:%d", host, port)
			c, err := client.Dial(addr)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", addr, err)
			}
			defer c.Close()

			if len(args) > 0 {
				return runOneShot(c, strings.Join(args, " "))
			}
			return runREPL(c, addr)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVarP(&port, "port", "p", 6380, "server port")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runOneShot sends a single command line and prints the reply, for
// scripting and quick checks (e.g. `cacheforge-cli PING`).
func runOneShot(c *client.Client, line string) error {
	reply, err := evaluate(c, line)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

// runREPL reads lines from stdin until EOF, sending each to the server
// and printing the reply.
func runREPL(c *client.Client, addr string) error {
	fmt.Printf("Connected to %s\n", addr)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("cacheforge> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("cacheforge> ")
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			break
		}

		reply, err := evaluate(c, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		} else {
			fmt.Println(reply)
		}
		fmt.Print("cacheforge> ")
	}
	return scanner.Err()
}

// evaluate dispatches one command line to the right Client method and
// renders its result the way the server's reply would read.
func evaluate(c *client.Client, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch strings.ToUpper(fields[0]) {
	case "PING":
		if err := c.Ping(); err != nil {
			return "", err
		}
		return "PONG", nil

	case "SET":
		if len(fields) < 3 {
			return "", fmt.Errorf("usage: SET <key> <value>")
		}
		value := strings.Join(fields[2:], " ")
		if err := c.Set(fields[1], value); err != nil {
			return "", err
		}
		return "OK", nil

	case "GET":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: GET <key>")
		}
		value, ok, err := c.Get(fields[1])
		if err != nil {
			return "", err
		}
		if !ok {
			return "(nil)", nil
		}
		return value, nil

	case "DEL":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: DEL <key>")
		}
		deleted, err := c.Del(fields[1])
		if err != nil {
			return "", err
		}
		return boolToReply(deleted), nil

	case "EXPIRE":
		if len(fields) < 3 {
			return "", fmt.Errorf("usage: EXPIRE <key> <seconds>")
		}
		var seconds int64
		if _, err := fmt.Sscanf(fields[2], "%d", &seconds); err != nil {
			return "", fmt.Errorf("invalid seconds: %s", fields[2])
		}
		ok, err := c.Expire(fields[1], seconds)
		if err != nil {
			return "", err
		}
		return boolToReply(ok), nil

	case "TTL":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: TTL <key>")
		}
		ttl, err := c.TTL(fields[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", ttl), nil

	case "STATS":
		stats, err := c.Stats()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, name := range []string{
			"total_requests", "total_reads", "total_writes",
			"cache_hits", "cache_misses", "expired_keys",
			"evicted_keys", "current_keys", "uptime_seconds",
		} {
			if v, ok := stats[name]; ok {
				fmt.Fprintf(&b, "%s: %d\n", name, v)
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil

	default:
		return "", fmt.Errorf("unknown command: %s", fields[0])
	}
}

func boolToReply(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
