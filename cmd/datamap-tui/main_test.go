package main

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/client"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

func newDaemon(t *testing.T) (*client.Client, *engine.Editor) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "tui.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	proj := engine.NewGraphProjection()
	ed := engine.NewEditor(engine.EditorOptions{Journal: st, Leases: st, Projection: proj})
	srv := httptest.NewServer(api.NewServer(api.Options{Graph: proj, Editor: ed, Events: st}).Handler())
	t.Cleanup(srv.Close)
	return client.NewClient(srv.URL, client.WithRetries(0, nil)), ed
}

func TestFetchData(t *testing.T) {
	c, ed := newDaemon(t)

	msg := fetchData(c)().(dataMsg)
	require.NoError(t, msg.err)
	assert.True(t, msg.empty, "no graph loaded yet")
	assert.Empty(t, msg.events)

	_, err := ed.Submit(t.Context(), engine.LoadMutation(datamap.NewGraph("R")), store.EventSource{OriginKind: "test"})
	require.NoError(t, err)

	msg = fetchData(c)().(dataMsg)
	require.NoError(t, msg.err)
	assert.False(t, msg.empty)
	assert.Equal(t, "R", msg.stats.Root)
	assert.Equal(t, 1, msg.stats.Vertices)
	require.Len(t, msg.events, 1)
	assert.Equal(t, store.EventTypeGraphLoaded, msg.events[0].EventType)
}

func TestModel_Update(t *testing.T) {
	m := initialModel(client.NewClient("http://127.0.0.1:1"), time.Second)
	assert.Contains(t, m.View(), "Connecting to http://127.0.0.1:1")

	stats := api.StatsResponse{Stats: datamap.Stats{Root: "R", Vertices: 7, Links: 1}, Seq: 4}
	events := []store.Event{{
		Seq:       4,
		EventType: store.EventTypeEdgeRemoved,
		TsEvent:   time.Now(),
		Source:    store.EventSource{OriginKind: "cli", OriginID: "alice"},
	}}
	next, _ := m.Update(dataMsg{stats: stats, events: events})
	m = next.(model)

	view := m.View()
	assert.Contains(t, view, "Online")
	assert.Contains(t, view, "Vertices")
	assert.Contains(t, view, "edge_removed")
	assert.Contains(t, view, "cli:alice")

	next, _ = m.Update(dataMsg{err: errors.New("connection refused")})
	m = next.(model)
	assert.Contains(t, m.View(), "Offline: connection refused")
	assert.NotNil(t, m.stats, "stale stats stay on screen while offline")

	next, _ = m.Update(dataMsg{empty: true})
	m = next.(model)
	assert.Contains(t, m.View(), "No graph loaded.")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, quit := cmd().(tea.QuitMsg)
	assert.True(t, quit)
}

func TestRenderEvents_Empty(t *testing.T) {
	assert.True(t, strings.Contains(renderEvents(nil), "No edits journaled yet."))
}
