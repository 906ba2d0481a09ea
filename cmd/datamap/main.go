package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/blob"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/client"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/mcp"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: datamap [-endpoint URL] [-token TOKEN] <command> [args]

Queries:
  health                              daemon health
  stats                               graph counters and journal position
  graph [-o FILE]                     print or export the graph document
  exists <path>                       does the attribute path exist
  invalid <path>                      first segment where the path stops resolving
  targets <path> <start>...           vertices path reaches from the start vertices
  enums <path>                        enumerations path reaches
  edge <parent> <name> <target>       edge metadata
  owner <id>                          owning parent of a vertex
  inbound <id>                        edges pointing at a vertex
  bindings <root-var> <owner:path:bound>...
                                      candidate vertices per rule variable
  events [-limit N]                   recent journal entries
  event <id>                          one journal entry
  report <edges|vertices|journal> [-from T] [-to T] [-types a,b] [-o FILE]
                                      CSV report; times are RFC3339

Edits:
  load <file>                         replace the graph with a document
  add-vertex <id> <kind> [choice...]
  remove-vertex <id>
  add-edge <parent> <name> <target> [comment]
  remove-edge <parent> <name> <target>
  set-choices <id> <choice>...

Other:
  archive <dir> [-after SEQ]          read compacted journal events from an archive dir
  mcp                                 serve the queries as MCP tools on stdio
  version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("datamap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	endpoint := fs.String("endpoint", envOrDefault("DATAMAP_ENDPOINT", client.DefaultEndpoint), "datamap-d base URL")
	token := fs.String("token", os.Getenv("DATAMAP_TOKEN"), "bearer token for edits")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	opts := []client.Option{}
	if *token != "" {
		opts = append(opts, client.WithToken(*token))
	}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "datamap %s (%s, built %s)\n", Version, Commit, BuildTime)
		return 0
	case "mcp":
		if err := mcp.NewServer(*endpoint, opts...).Serve(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.NewClient(*endpoint, opts...)
	out, err := dispatch(ctx, c, cmd, rest, stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) && cmd != "archive" {
			fmt.Fprintf(stderr, "Is datamap-d running at %s?\n", *endpoint)
		}
		return 1
	}
	if out != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "Error encoding response: %v\n", err)
			return 1
		}
	}
	return 0
}

var errUsage = errors.New("invalid arguments")

func usageErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string, stdout io.Writer) (any, error) {
	need := func(n int, form string) error {
		if len(args) < n {
			return usageErr("%s %s", cmd, form)
		}
		return nil
	}

	switch cmd {
	case "health":
		return c.Ping(ctx)

	case "stats":
		return c.Stats(ctx)

	case "graph":
		return exportGraph(ctx, c, args, stdout)

	case "exists":
		if err := need(1, "<path>"); err != nil {
			return nil, err
		}
		exists, err := c.PathExists(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": args[0], "exists": exists}, nil

	case "invalid":
		if err := need(1, "<path>"); err != nil {
			return nil, err
		}
		return c.FirstInvalidSegment(ctx, args[0])

	case "targets":
		if err := need(2, "<path> <start>..."); err != nil {
			return nil, err
		}
		targets, err := c.ResolveTargets(ctx, args[1:], args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"targets": targets}, nil

	case "enums":
		if err := need(1, "<path>"); err != nil {
			return nil, err
		}
		matches, err := c.FindEnumerations(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"matches": matches}, nil

	case "edge":
		if err := need(3, "<parent> <name> <target>"); err != nil {
			return nil, err
		}
		return c.EdgeMetadata(ctx, args[0], args[1], args[2])

	case "owner":
		if err := need(1, "<id>"); err != nil {
			return nil, err
		}
		return c.Owner(ctx, args[0])

	case "inbound":
		if err := need(1, "<id>"); err != nil {
			return nil, err
		}
		refs, err := c.InboundReferences(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": args[0], "references": refs}, nil

	case "bindings":
		if err := need(1, "<root-var> <owner:path:bound>..."); err != nil {
			return nil, err
		}
		assigns, err := parseAssignments(args[1:])
		if err != nil {
			return nil, err
		}
		bindings, err := c.ResolveBindings(ctx, args[0], assigns)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bindings": bindings}, nil

	case "events":
		fs := flag.NewFlagSet("events", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		limit := fs.Int("limit", 20, "number of events")
		if err := fs.Parse(args); err != nil {
			return nil, usageErr("events [-limit N]")
		}
		return c.GetEvents(ctx, *limit)

	case "event":
		if err := need(1, "<id>"); err != nil {
			return nil, err
		}
		return c.GetEvent(ctx, args[0])

	case "archive":
		return readArchive(ctx, args)

	case "report":
		return nil, writeReport(ctx, c, args, stdout)

	case "load":
		if err := need(1, "<file>"); err != nil {
			return nil, err
		}
		g, err := engine.LoadGraph(ctx, blob.NewLocalBlobStore(filepath.Dir(args[0])), filepath.Base(args[0]))
		if err != nil {
			return nil, err
		}
		return c.Submit(ctx, engine.LoadMutation(g))

	case "add-vertex":
		if err := need(2, "<id> <kind> [choice...]"); err != nil {
			return nil, err
		}
		return c.Submit(ctx, engine.Mutation{
			Op:      store.EventTypeVertexAdded,
			ID:      args[0],
			Kind:    datamap.Kind(strings.ToUpper(args[1])),
			Choices: args[2:],
		})

	case "remove-vertex":
		if err := need(1, "<id>"); err != nil {
			return nil, err
		}
		return c.Submit(ctx, engine.Mutation{Op: store.EventTypeVertexRemoved, ID: args[0]})

	case "add-edge":
		if err := need(3, "<parent> <name> <target> [comment]"); err != nil {
			return nil, err
		}
		m := engine.Mutation{Op: store.EventTypeEdgeAdded, Parent: args[0], Name: args[1], Target: args[2]}
		if len(args) > 3 {
			m.Comment = strings.Join(args[3:], " ")
		}
		return c.Submit(ctx, m)

	case "remove-edge":
		if err := need(3, "<parent> <name> <target>"); err != nil {
			return nil, err
		}
		return c.Submit(ctx, engine.Mutation{Op: store.EventTypeEdgeRemoved, Parent: args[0], Name: args[1], Target: args[2]})

	case "set-choices":
		if err := need(2, "<id> <choice>..."); err != nil {
			return nil, err
		}
		return c.Submit(ctx, engine.Mutation{Op: store.EventTypeChoicesSet, ID: args[0], Choices: args[1:]})

	default:
		return nil, usageErr("unknown command %q", cmd)
	}
}

// exportGraph prints the document, or writes it with -o and prints nothing.
func exportGraph(ctx context.Context, c *client.Client, args []string, stdout io.Writer) (any, error) {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	outPath := fs.String("o", "", "write the document to this file")
	if err := fs.Parse(args); err != nil {
		return nil, usageErr("graph [-o FILE]")
	}

	doc, err := c.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if *outPath == "" {
		return doc, nil
	}

	g, err := doc.ToGraph()
	if err != nil {
		return nil, err
	}
	bs := blob.NewLocalBlobStore(filepath.Dir(*outPath))
	if err := engine.ExportGraph(ctx, bs, filepath.Base(*outPath), g); err != nil {
		return nil, err
	}
	fmt.Fprintf(stdout, "Graph written to %s (%d vertices)\n", *outPath, len(doc.Vertices))
	return nil, nil
}

// readArchive decodes archived journal batches offline; the daemon is not
// involved.
func readArchive(ctx context.Context, args []string) (any, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return nil, usageErr("archive <dir> [-after SEQ]")
	}
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	after := fs.Int64("after", 0, "only events with a higher seq")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, usageErr("archive %s: %v", args[0], err)
	}

	events, err := engine.ReadArchive(ctx, blob.NewLocalBlobStore(args[0]), "events", *after)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*store.Event{}
	}
	return events, nil
}

// writeReport streams a CSV report to stdout or the -o file.
func writeReport(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return usageErr("report <edges|vertices|journal> [flags]")
	}
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	from := fs.String("from", "", "start of the journal window")
	to := fs.String("to", "", "end of the journal window")
	types := fs.String("types", "", "comma separated event types")
	outPath := fs.String("o", "", "write the report to this file")
	if err := fs.Parse(args[1:]); err != nil {
		return usageErr("report %s: %v", args[0], err)
	}

	q := client.ReportQuery{Type: args[0]}
	for _, bound := range []struct {
		value string
		dst   *time.Time
	}{{*from, &q.From}, {*to, &q.To}} {
		if bound.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.value)
		if err != nil {
			return usageErr("report: %q is not an RFC3339 time", bound.value)
		}
		*bound.dst = t
	}
	if *types != "" {
		q.EventTypes = strings.Split(*types, ",")
	}

	data, err := c.Report(ctx, q)
	if err != nil {
		return err
	}
	if *outPath == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*outPath, data, 0644)
}

// parseAssignments reads owner:path:bound triples. bound may be empty.
func parseAssignments(args []string) ([]binding.Assignment, error) {
	out := make([]binding.Assignment, 0, len(args))
	for _, a := range args {
		parts := strings.SplitN(a, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, usageErr("assignment %q is not owner:path[:bound]", a)
		}
		asg := binding.Assignment{Owner: parts[0], Path: parts[1]}
		if len(parts) == 3 {
			asg.Bound = parts[2]
		}
		out = append(out, asg)
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
