package engine

import (
	"context"
	"testing"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

func TestSnapshotWorker_TakeAndLoad(t *testing.T) {
	ctx := context.Background()

	// 1. Setup store and editor
	st := newTestStore(t)
	proj := NewGraphProjection()
	ed := NewEditor(EditorOptions{Journal: st, Leases: st, Projection: proj})

	worker := NewSnapshotWorker(st, proj, time.Hour, 2, nil)

	// 2. Nothing to snapshot yet
	saved, err := worker.TakeSnapshot(ctx)
	if err != nil {
		t.Fatalf("TakeSnapshot failed: %v", err)
	}
	if saved {
		t.Fatal("Expected no snapshot before a graph is loaded")
	}

	if _, err := ed.Submit(ctx, LoadMutation(sampleGraph(t)), apiSource); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// 3. Take Snapshot
	saved, err = worker.TakeSnapshot(ctx)
	if err != nil || !saved {
		t.Fatalf("TakeSnapshot failed: saved=%v err=%v", saved, err)
	}
	saved, _ = worker.TakeSnapshot(ctx)
	if saved {
		t.Error("Expected no new snapshot while the journal has not moved")
	}

	// 4. More events after the checkpoint
	if _, err := ed.Submit(ctx, Mutation{Op: store.EventTypeVertexAdded, ID: "C", Kind: datamap.KindString}, apiSource); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := ed.Submit(ctx, Mutation{Op: store.EventTypeEdgeAdded, Parent: "S", Name: "comment", Target: "C"}, apiSource); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// 5. Verify snapshot in store
	snap, err := st.GetLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetLatestSnapshot failed: %v", err)
	}
	if snap == nil || snap.LastSeq != 1 {
		t.Fatalf("Expected snapshot at seq 1, got %+v", snap)
	}

	// 6. Restore into a fresh projection
	restored := NewGraphProjection()
	pos, err := LoadLatestSnapshot(ctx, st, restored)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot failed: %v", err)
	}
	if pos.Seq != 1 {
		t.Errorf("Expected checkpoint at seq 1, got %d", pos.Seq)
	}
	if restored.Current().PathExists("a.comment") {
		t.Error("Snapshot must not contain edits after its checkpoint")
	}

	pos, err = Restore(ctx, st, st, restored)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if pos.Seq != 3 {
		t.Errorf("Expected position 3 after replaying the tail, got %d", pos.Seq)
	}
	if !restored.Current().PathExists("a.comment") {
		t.Error("Expected a.comment after replaying the journal tail")
	}
}

func TestRestore_NoSnapshot(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	proj := NewGraphProjection()
	pos, err := Restore(ctx, st, st, proj)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if pos.Seq != 0 || proj.Current() != nil {
		t.Errorf("Expected an empty projection, got %+v", pos)
	}

	ed := NewEditor(EditorOptions{Journal: st, Leases: st, Projection: proj})
	if _, err := ed.Submit(ctx, LoadMutation(sampleGraph(t)), apiSource); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	replayed := NewGraphProjection()
	if _, err := Restore(ctx, st, st, replayed); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !replayed.Current().PathExists("b.s.name") {
		t.Error("Expected full replay to rebuild the graph")
	}
}

func TestSnapshotWorker_Run(t *testing.T) {
	st := newTestStore(t)
	proj := NewGraphProjection()
	proj.LoadState(sampleGraph(t), Position{Seq: 7, EventID: "e7"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSnapshotWorker(st, proj, 10*time.Millisecond, 1, nil).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, _ := st.GetLatestSnapshot(context.Background()); snap != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	snap, err := st.GetLatestSnapshot(context.Background())
	if err != nil || snap == nil {
		t.Fatalf("Expected the worker to write a snapshot, got %v %v", snap, err)
	}
	if snap.LastEventID != "e7" {
		t.Errorf("Expected checkpoint e7, got %s", snap.LastEventID)
	}
}
