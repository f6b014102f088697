// Command rpqctl drives the debug server of a running streamrpq.
//
//	rpqctl [-addr http://127.0.0.1:9092] [-token T] status|step [n]|pause|continue|health
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sanonone/streamrpq/pkg/client"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:9092", "Base URL of the debug server")
	token := flag.String("token", os.Getenv("STREAMRPQ_TOKEN"), "Bearer token (defaults to $STREAMRPQ_TOKEN)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: rpqctl [flags] status|step [n]|pause|continue|health")
		os.Exit(2)
	}

	c := client.NewWithURL(*addr, *token)
	if err := dispatch(c, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func dispatch(c *client.Client, args []string) error {
	switch args[0] {
	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		return printJSON(st)
	case "step":
		n := 1
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			n = v
		}
		for range n {
			res, err := c.Step()
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d time=%d matches=%d windows=%d\n",
				res.Processed, res.Status.LastTime, res.Status.Matched, res.Status.LiveWindows)
		}
		return nil
	case "pause":
		st, err := c.Pause()
		if err != nil {
			return err
		}
		return printJSON(st)
	case "continue":
		st, err := c.Continue()
		if err != nil {
			return err
		}
		return printJSON(st)
	case "health":
		if err := c.Healthz(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
