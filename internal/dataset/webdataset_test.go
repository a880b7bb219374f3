package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStreamShardPairsEntries(t *testing.T) {
	buf := buildShard([]tarEntry{
		{"000001.input", "[0.5, 1]"},
		{"000002.target", "[2]"},
		{"000001.target", "[3]"},
		{"000002.input", "[-1, 0]"},
		{"README.md", "ignored"},
	})
	shard := writeTemp(t, buf)

	samples, err := readShard(context.Background(), shard)
	if err != nil {
		t.Fatalf("readShard: %v", err)
	}
	want := []Sample{
		{Key: "000001", Input: []float64{0.5, 1}, Target: []float64{3}},
		{Key: "000002", Input: []float64{-1, 0}, Target: []float64{2}},
	}
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamShardReportsIncomplete(t *testing.T) {
	shard := writeTemp(t, buildShard([]tarEntry{{"000001.input", "[1]"}}))
	if _, err := readShard(context.Background(), shard); err == nil {
		t.Fatal("expected incomplete sample error")
	}
}

func TestStreamShardPendingOverflow(t *testing.T) {
	shard := writeTemp(t, buildShard([]tarEntry{
		{"a.input", "[1]"},
		{"b.input", "[1]"},
		{"c.input", "[1]"},
	}))
	samplesCh, errCh := StreamShard(context.Background(), shard, 2)
	for range samplesCh {
	}
	if err := <-errCh; !errors.Is(err, ErrPendingOverflow) {
		t.Fatalf("expected ErrPendingOverflow, got %v", err)
	}
}

func TestStreamShardRejectsBadJSON(t *testing.T) {
	shard := writeTemp(t, buildShard([]tarEntry{{"a.input", "not json"}}))
	if _, err := readShard(context.Background(), shard); err == nil {
		t.Fatal("expected decode error")
	}
}

type tarEntry struct {
	name string
	body string
}

func buildShard(entries []tarEntry) *bytes.Buffer {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Size: int64(len(e.body)), Mode: 0o644}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			panic(err)
		}
	}
	tw.Close()
	return buf
}

func writeTemp(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ShardName(0))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	return path
}
