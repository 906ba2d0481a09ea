package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/blob"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
)

// LoadGraph reads and parses a snapshot document
func LoadGraph(ctx context.Context, bs blob.BlobStore, key string) (*datamap.Graph, error) {
	rc, err := bs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", key, err)
	}

	g, err := datamap.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse graph %s: %w", key, err)
	}
	return g, nil
}

// ExportGraph writes g as an indented snapshot document
func ExportGraph(ctx context.Context, bs blob.BlobStore, key string, g *datamap.Graph) error {
	data, err := json.MarshalIndent(g.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	return bs.Put(ctx, key, bytes.NewReader(data))
}
