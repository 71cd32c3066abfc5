// Command trellis is a small CLI over the Trellis client: queue
// mutations from the shell, browse and export the outline.
//
//	trellis add -parent node_... "Buy milk" "Buy eggs"
//	trellis ls
//	trellis done node_...
//	trellis mv -parent node_... -priority 0 node_...
//	trellis export -format opml > outline.opml
//	trellis stats
//
// Configuration comes from ~/.config/trellis/config.yaml, a .env file,
// and TRELLIS_* environment variables, in rising precedence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xraph/trellis/client"
	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/outline"
	"github.com/xraph/trellis/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "trellis:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default ~/.config/trellis/config.yaml)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	cfg, creds, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []client.Option{client.WithLogger(logger)}
	if hasCredentials(creds) {
		opts = append(opts, client.WithCredentials(creds))
	}

	c, err := client.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmdErr := dispatch(ctx, c, args[0], args[1:])

	// Flush buffered writes even when the command itself failed, so a
	// partial batch is not silently dropped.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := c.Drain(drainCtx); err != nil {
		if cmdErr != nil {
			return cmdErr
		}
		return fmt.Errorf("drain queue: %w", err)
	}

	return cmdErr
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "add":
		return cmdAdd(ctx, c, args)
	case "ls":
		return cmdLs(ctx, c, args)
	case "done":
		return cmdDone(ctx, c, args)
	case "rm":
		return cmdRm(ctx, c, args)
	case "mv":
		return cmdMv(ctx, c, args)
	case "export":
		return cmdExport(ctx, c, args)
	case "stats":
		return cmdStats(c)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: trellis [-config file] [-v] <command> [flags] [args]

commands:
  add [-parent id] [-note text] [-priority n] <name>...   queue node creations
  ls                                                      print the outline
  done [-undo] <id>...                                    complete (or reopen) nodes
  rm <id>...                                              delete nodes
  mv -parent id [-priority n] <id>...                     move nodes
  export [-format text|markdown|opml] [-title t]          write the outline to stdout
  stats                                                   show queue counters
`)
}

// ── Commands ────────────────────────────────────────────────────────

func cmdAdd(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	parent := fs.String("parent", "", "parent node id (default: root)")
	note := fs.String("note", "", "note attached to each created node")
	priority := fs.Int("priority", -1, "insertion position among siblings (-1 appends)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return errors.New("add: at least one name required")
	}

	var parentID id.NodeID
	if *parent != "" {
		pid, err := id.ParseNodeID(*parent)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		parentID = pid
	}

	params := make([]queue.Params, len(names))
	for i, name := range names {
		p := queue.CreateParams{Name: name, Note: *note, ParentID: parentID}
		if *priority >= 0 {
			p.Priority = queue.Int(*priority + i)
		}
		params[i] = p
	}

	handles := c.Batch(params...)
	for i, h := range handles {
		raw, err := h.Wait(ctx)
		if err != nil {
			return fmt.Errorf("add %q: %w", names[i], err)
		}
		var resp struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &resp); err == nil && resp.ID != "" {
			fmt.Printf("%s\t%s\n", resp.ID, names[i])
		} else {
			fmt.Printf("created\t%s\n", names[i])
		}
	}

	return nil
}

func cmdLs(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	roots, err := c.Outline(ctx)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}

	return outline.WriteText(os.Stdout, roots)
}

func cmdDone(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("done", flag.ContinueOnError)
	undo := fs.Bool("undo", false, "reopen instead of completing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return forEachNode(ctx, fs.Args(), "done", func(nid id.NodeID) *queue.Handle {
		if *undo {
			return c.UncompleteNode(nid)
		}
		return c.CompleteNode(nid)
	})
}

func cmdRm(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return forEachNode(ctx, fs.Args(), "rm", c.DeleteNode)
}

func cmdMv(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("mv", flag.ContinueOnError)
	parent := fs.String("parent", "", "new parent node id")
	priority := fs.Int("priority", -1, "position among the new siblings (-1 keeps)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *parent == "" && *priority < 0 {
		return errors.New("mv: nothing to change, pass -parent and/or -priority")
	}

	var parentID id.NodeID
	if *parent != "" {
		pid, err := id.ParseNodeID(*parent)
		if err != nil {
			return fmt.Errorf("mv: %w", err)
		}
		parentID = pid
	}

	return forEachNode(ctx, fs.Args(), "mv", func(nid id.NodeID) *queue.Handle {
		p := queue.MoveParams{NodeID: nid, ParentID: parentID}
		if *priority >= 0 {
			p.Priority = queue.Int(*priority)
		}
		return c.MoveNode(p)
	})
}

func cmdExport(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "opml", "text, markdown, or opml")
	title := fs.String("title", "Trellis export", "document title (opml only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	roots, err := c.Outline(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	switch *format {
	case "text":
		return outline.WriteText(os.Stdout, roots)
	case "markdown":
		return outline.WriteMarkdown(os.Stdout, roots)
	case "opml":
		return outline.WriteOPML(os.Stdout, *title, roots)
	default:
		return fmt.Errorf("export: unknown format %q", *format)
	}
}

func cmdStats(c *client.Client) error {
	s := c.Stats()
	fmt.Printf("queued:     %d\n", s.QueueLength)
	fmt.Printf("in flight:  %d batches\n", s.ActiveBatches)
	fmt.Printf("processed:  %d\n", s.TotalProcessed)
	fmt.Printf("failed:     %d\n", s.TotalFailed)

	return nil
}

// forEachNode parses each argument as a node ID, queues the operation,
// and waits for all of them. The first failure wins, but every handle
// is waited on so the queue is quiet afterwards.
func forEachNode(ctx context.Context, args []string, cmd string, op func(id.NodeID) *queue.Handle) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: at least one node id required", cmd)
	}

	handles := make([]*queue.Handle, 0, len(args))
	ids := make([]id.NodeID, 0, len(args))
	for _, arg := range args {
		nid, err := id.ParseNodeID(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		ids = append(ids, nid)
		handles = append(handles, op(nid))
	}

	var firstErr error
	for i, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s %s: %w", cmd, ids[i], err)
			}
			continue
		}
		fmt.Printf("%s\t%s\n", cmd, ids[i])
	}

	return firstErr
}
