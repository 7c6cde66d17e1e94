// Command digestctl is a small operator CLI for the digest service's
// management API.
//
// Usage:
//
//	digestctl -addr http://localhost:8090 -key $MGMT_API_KEY run
//	digestctl digest alice
//	digestctl states alice
//	digestctl override alice pcb blocked
//	digestctl clear-override alice pcb
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", envOr("DIGEST_MGMT_ADDR", "http://localhost:8090"), "management API base URL")
	key := flag.String("key", os.Getenv("MGMT_API_KEY"), "management API key")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{base: *addr, key: *key, http: &http.Client{Timeout: 30 * time.Second}}

	var err error
	switch args[0] {
	case "run":
		err = c.post("/api/v1/runs", nil)
	case "digest":
		err = requireArgs(args, 2, func() error {
			return c.get("/api/v1/users/" + args[1] + "/digest")
		})
	case "states":
		err = requireArgs(args, 2, func() error {
			return c.get("/api/v1/users/" + args[1] + "/states")
		})
	case "override":
		err = requireArgs(args, 4, func() error {
			body, _ := json.Marshal(map[string]string{"phase": args[3]})
			return c.put("/api/v1/users/"+args[1]+"/projects/"+args[2]+"/override", body)
		})
	case "clear-override":
		err = requireArgs(args, 3, func() error {
			return c.delete("/api/v1/users/" + args[1] + "/projects/" + args[2] + "/override")
		})
	case "health":
		err = c.get("/api/v1/health")
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: digestctl [-addr URL] [-key KEY] <command>

commands:
  run                                trigger a digest run
  digest <user>                      print the user's latest digest
  states <user>                      list the user's phase states
  override <user> <project> <phase>  pin a phase (active|review|done|blocked)
  clear-override <user> <project>    resume automatic transitions
  health                             detailed health report`)
}

func requireArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		usage()
		os.Exit(2)
	}
	return fn()
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) get(path string) error    { return c.do(http.MethodGet, path, nil) }
func (c *client) post(path string, b []byte) error { return c.do(http.MethodPost, path, b) }
func (c *client) put(path string, b []byte) error  { return c.do(http.MethodPut, path, b) }
func (c *client) delete(path string) error { return c.do(http.MethodDelete, path, nil) }

func (c *client) do(method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	if len(raw) > 0 {
		// Pretty-print JSON responses; pass anything else through.
		var buf bytes.Buffer
		if json.Indent(&buf, raw, "", "  ") == nil {
			fmt.Println(buf.String())
		} else {
			os.Stdout.Write(raw)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
