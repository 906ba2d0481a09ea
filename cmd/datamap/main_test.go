package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

const testGraph = `{
	"rootId": "R",
	"vertices": [
		{"id": "R", "type": "SOAR_ID", "outEdges": [{"name": "io", "toId": "IO"}]},
		{"id": "IO", "type": "SOAR_ID", "outEdges": [{"name": "input-link", "toId": "IL"}]},
		{"id": "IL", "type": "SOAR_ID", "outEdges": [{"name": "mode", "toId": "M"}]},
		{"id": "M", "type": "ENUMERATION", "choices": ["auto", "manual"]}
	]
}`

func newDaemon(t *testing.T) (*httptest.Server, *engine.GraphProjection) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	proj := engine.NewGraphProjection()
	ed := engine.NewEditor(engine.EditorOptions{Journal: st, Leases: st, Projection: proj})
	srv := httptest.NewServer(api.NewServer(api.Options{Graph: proj, Editor: ed, Events: st, Token: "secret"}).Handler())
	t.Cleanup(srv.Close)
	return srv, proj
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-endpoint", srv.URL, "-token", "secret"}, args...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_LoadAndQuery(t *testing.T) {
	srv, proj := newDaemon(t)
	graphPath := filepath.Join(t.TempDir(), "agent.json")
	if err := os.WriteFile(graphPath, []byte(testGraph), 0644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, srv, "load", graphPath)
	if code != 0 {
		t.Fatalf("load exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"op": "graph_loaded"`) {
		t.Errorf("unexpected load output: %s", out)
	}
	if proj.Current() == nil {
		t.Fatal("expected the graph to be loaded")
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"exists", "io.input-link"}, `"exists": true`},
		{[]string{"exists", "io.output-link"}, `"exists": false`},
		{[]string{"invalid", "io.output-link"}, `"invalid_segment": "output-link"`},
		{[]string{"targets", "io.input-link", "R"}, `"IL"`},
		{[]string{"enums", "mode"}, `"manual"`},
		{[]string{"edge", "IL", "mode", "M"}, `"owner_parent_id": "IL"`},
		{[]string{"owner", "IL"}, `"owner_parent_id": "IO"`},
		{[]string{"inbound", "M"}, `"parent_id": "IL"`},
		{[]string{"stats"}, `"vertices": 4`},
		{[]string{"events", "-limit", "1"}, `"graph_loaded"`},
	}
	for _, tt := range tests {
		code, out, errOut := runCLI(t, srv, tt.args...)
		if code != 0 {
			t.Errorf("%v exited %d: %s", tt.args, code, errOut)
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%v: expected %s in output, got %s", tt.args, tt.want, out)
		}
	}
}

func TestCLI_Edits(t *testing.T) {
	srv, proj := newDaemon(t)
	g, _ := datamap.ParseDocument([]byte(testGraph))
	proj.LoadState(g, engine.Position{})

	steps := [][]string{
		{"add-vertex", "OL", "soar_id"},
		{"add-edge", "IO", "output-link", "OL", "commands", "go", "here"},
		{"set-choices", "M", "auto", "manual", "off"},
	}
	for _, args := range steps {
		if code, _, errOut := runCLI(t, srv, args...); code != 0 {
			t.Fatalf("%v exited %d: %s", args, code, errOut)
		}
	}

	snap := proj.Current()
	if !snap.PathExists("io.output-link") {
		t.Error("expected io.output-link after add-edge")
	}
	if enums := snap.FindEnumerations("mode"); len(enums) != 1 || len(enums[0].Choices) != 3 {
		t.Errorf("expected three choices, got %+v", enums)
	}

	code, _, errOut := runCLI(t, srv, "remove-vertex", "ghost")
	if code != 1 || !strings.Contains(errOut, "not_found") {
		t.Errorf("expected not_found, got %d %s", code, errOut)
	}

	if code, _, _ := runCLI(t, srv, "remove-edge", "IO", "output-link", "OL"); code != 0 {
		t.Errorf("remove-edge exited %d", code)
	}
	if proj.Current().PathExists("io.output-link") {
		t.Error("expected io.output-link to be gone")
	}
}

func TestCLI_Bindings(t *testing.T) {
	srv, proj := newDaemon(t)
	g, _ := datamap.ParseDocument([]byte(testGraph))
	proj.LoadState(g, engine.Position{})

	code, out, errOut := runCLI(t, srv, "bindings", "s", "s:io:io", "io:input-link.mode:m")
	if code != 0 {
		t.Fatalf("bindings exited %d: %s", code, errOut)
	}
	var resp struct {
		Bindings map[string][]string `json:"bindings"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(resp.Bindings["m"]) != 1 || resp.Bindings["m"][0] != "M" {
		t.Errorf("unexpected bindings %+v", resp.Bindings)
	}
}

func TestCLI_GraphExport(t *testing.T) {
	srv, proj := newDaemon(t)
	g, _ := datamap.ParseDocument([]byte(testGraph))
	proj.LoadState(g, engine.Position{})

	outPath := filepath.Join(t.TempDir(), "export.json")
	code, out, errOut := runCLI(t, srv, "graph", "-o", outPath)
	if code != 0 {
		t.Fatalf("graph exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "4 vertices") {
		t.Errorf("unexpected output %s", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	exported, err := datamap.ParseDocument(data)
	if err != nil {
		t.Fatalf("export does not parse: %v", err)
	}
	if exported.RootID != "R" || len(exported.Vertices) != 4 {
		t.Errorf("unexpected export %+v", exported.Document())
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	srv, _ := newDaemon(t)

	tests := [][]string{
		{},
		{"frobnicate"},
		{"exists"},
		{"edge", "R", "io"},
		{"bindings", "s", "broken"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		full := append([]string{"-endpoint", srv.URL}, args...)
		if code := run(full, &stdout, &stderr); code != 2 {
			t.Errorf("%v: expected exit code 2, got %d", args, code)
		}
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"version"}, &stdout, &stderr); code != 0 || !strings.HasPrefix(stdout.String(), "datamap ") {
		t.Errorf("version: %d %q", code, stdout.String())
	}
}

func TestCLI_Unreachable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-endpoint", "http://127.0.0.1:1", "-timeout", "2s", "health"}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "Is datamap-d running") {
		t.Errorf("expected a connection hint, got %d %q", code, stderr.String())
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"s:io:io", "io:input-link"})
	if err != nil {
		t.Fatal(err)
	}
	want := []binding.Assignment{{Owner: "s", Path: "io", Bound: "io"}, {Owner: "io", Path: "input-link"}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("parseAssignments() = %+v", got)
	}
}

func TestCLI_Report(t *testing.T) {
	srv, proj := newDaemon(t)
	g, _ := datamap.ParseDocument([]byte(testGraph))
	proj.LoadState(g, engine.Position{})

	code, out, errOut := runCLI(t, srv, "report", "edges")
	if code != 0 {
		t.Fatalf("report exited %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "parent_id,name,target_id,") || !strings.Contains(out, "IL,mode,M,ENUMERATION,IL,1,false,false,") {
		t.Errorf("unexpected edge report %q", out)
	}

	outPath := filepath.Join(t.TempDir(), "vertices.csv")
	if code, _, errOut := runCLI(t, srv, "report", "vertices", "-o", outPath); code != 0 {
		t.Fatalf("report -o exited %d: %s", code, errOut)
	}
	data, err := os.ReadFile(outPath)
	if err != nil || !strings.Contains(string(data), "M,ENUMERATION,IL,1,0,auto|manual") {
		t.Errorf("unexpected vertex report %q, %v", data, err)
	}

	if code, _, _ := runCLI(t, srv, "report", "journal", "-from", "last-week"); code != 2 {
		t.Errorf("expected a usage error for a bad time, got %d", code)
	}
	if code, _, errOut := runCLI(t, srv, "report", "usage"); code != 1 || !strings.Contains(errOut, "invalid_report_type") {
		t.Errorf("expected invalid_report_type, got %d %s", code, errOut)
	}
}

func TestCLI_EventAndArchive(t *testing.T) {
	srv, _ := newDaemon(t)
	graphPath := filepath.Join(t.TempDir(), "agent.json")
	if err := os.WriteFile(graphPath, []byte(testGraph), 0644); err != nil {
		t.Fatal(err)
	}
	_, out, _ := runCLI(t, srv, "load", graphPath)
	var loaded struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal([]byte(out), &loaded); err != nil || loaded.EventID == "" {
		t.Fatalf("unexpected load output %q: %v", out, err)
	}

	code, out, errOut := runCLI(t, srv, "event", loaded.EventID)
	if code != 0 || !strings.Contains(out, `"event_type": "graph_loaded"`) {
		t.Errorf("event: %d %s %s", code, out, errOut)
	}

	// Archives are gzipped JSON Lines under events/.
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "events", "2026", "01", "02"), 0755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for seq := int64(1); seq <= 3; seq++ {
		enc.Encode(store.Event{Seq: seq, EventID: store.EventID(fmt.Sprintf("e%d", seq)), EventType: store.EventTypeVertexAdded})
	}
	gz.Close()
	if err := os.WriteFile(filepath.Join(dir, "events", "2026", "01", "02", "1_3_x.jsonl.gz"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut = runCLI(t, srv, "archive", dir, "-after", "1")
	if code != 0 {
		t.Fatalf("archive exited %d: %s", code, errOut)
	}
	var archived []store.Event
	if err := json.Unmarshal([]byte(out), &archived); err != nil {
		t.Fatalf("failed to decode archive output: %v", err)
	}
	if len(archived) != 2 || archived[0].Seq != 2 {
		t.Errorf("unexpected archived events %+v", archived)
	}
}
