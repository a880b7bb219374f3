package dataset

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"laplace-forge/internal/model"
)

// LoadBatch reads every sample from the given shards. Shards are read in the
// given order; samples inside a shard are ordered by key.
func LoadBatch(ctx context.Context, paths []string) (model.Batch, error) {
	var batch model.Batch
	for _, path := range paths {
		samples, err := readShard(ctx, path)
		if err != nil {
			return model.Batch{}, err
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].Key < samples[j].Key })
		for _, s := range samples {
			batch.Inputs = append(batch.Inputs, s.Input)
			batch.Targets = append(batch.Targets, s.Target)
		}
	}
	return batch, nil
}

func readShard(ctx context.Context, path string) ([]Sample, error) {
	samplesCh, errCh := StreamShard(ctx, path, defaultPendingCap)
	var samples []Sample
	for s := range samplesCh {
		samples = append(samples, s)
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("shard %s: %w", path, err)
	}
	return samples, nil
}

// WriteShard stores batch as a tar shard, keying examples by zero-padded index.
func WriteShard(path string, batch model.Batch) error {
	if len(batch.Inputs) != len(batch.Targets) {
		return fmt.Errorf("dataset: %d inputs but %d targets", len(batch.Inputs), len(batch.Targets))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard: %w", err)
	}
	tw := tar.NewWriter(f)
	for i := range batch.Inputs {
		key := fmt.Sprintf("%06d", i)
		if err := writeEntry(tw, key+inputExt, batch.Inputs[i]); err != nil {
			f.Close()
			return err
		}
		if err := writeEntry(tw, key+targetExt, batch.Targets[i]); err != nil {
			f.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	return f.Close()
}

func writeEntry(tw *tar.Writer, name string, values []float64) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ShardName formats the canonical shard file name for index i.
func ShardName(i int) string {
	return fmt.Sprintf("shard-%06d.tar", i)
}
