package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sample represents a paired record from a shard.
type Sample struct {
	Key    string
	Input  []float64
	Target []float64
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("dataset: pending pair buffer exceeded")

const (
	defaultPendingCap = 1024
	inputExt          = ".input"
	targetExt         = ".target"
)

// StreamShard streams paired samples from the shard at path. Each sample is
// stored as <key>.input and <key>.target, both JSON arrays of numbers.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open shard: %w", err)
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar: %w", err)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, filepath.Ext(name))
			if ext != inputExt && ext != targetExt {
				continue
			}

			var values []float64
			if err := json.NewDecoder(tr).Decode(&values); err != nil {
				errCh <- fmt.Errorf("decode %s: %w", name, err)
				return
			}
			part := pending[key]
			if part == nil {
				part = &partial{}
				pending[key] = part
			}
			if ext == inputExt {
				part.input = values
			} else {
				part.target = values
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part.ready() {
				sample := Sample{Key: key, Input: part.input, Target: part.target}
				delete(pending, key)

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- fmt.Errorf("dataset: %d samples incomplete in %s", len(pending), path)
		}
	}()

	return out, errCh
}

type partial struct {
	input  []float64
	target []float64
}

func (p *partial) ready() bool {
	return p.input != nil && p.target != nil
}
