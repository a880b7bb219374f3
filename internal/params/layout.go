package params

import (
	"errors"
	"fmt"
)

// ErrSizeMismatch reports a vector whose length does not match its layout.
var ErrSizeMismatch = errors.New("params: size mismatch")

// Block describes one named tensor inside a flat parameter vector.
type Block struct {
	Name   string
	Shape  []int
	Offset int
}

// Size returns the number of scalars in the block.
func (b Block) Size() int {
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Layout is an ordered set of named blocks packed into one flat vector.
type Layout struct {
	blocks []Block
	index  map[string]int
	size   int
}

// NewLayout builds a layout from (name, shape) pairs in order.
func NewLayout(names []string, shapes [][]int) (Layout, error) {
	if len(names) != len(shapes) {
		return Layout{}, fmt.Errorf("params: %d names for %d shapes", len(names), len(shapes))
	}
	l := Layout{index: make(map[string]int, len(names))}
	for i, name := range names {
		if _, dup := l.index[name]; dup {
			return Layout{}, fmt.Errorf("params: duplicate block %q", name)
		}
		shape := append([]int(nil), shapes[i]...)
		for _, d := range shape {
			if d <= 0 {
				return Layout{}, fmt.Errorf("params: block %q has non-positive dimension %d", name, d)
			}
		}
		b := Block{Name: name, Shape: shape, Offset: l.size}
		l.index[name] = len(l.blocks)
		l.blocks = append(l.blocks, b)
		l.size += b.Size()
	}
	return l, nil
}

// Size is the total number of scalars.
func (l Layout) Size() int { return l.size }

// Names lists block names in packing order.
func (l Layout) Names() []string {
	out := make([]string, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = b.Name
	}
	return out
}

// Block looks up a block by name.
func (l Layout) Block(name string) (Block, bool) {
	i, ok := l.index[name]
	if !ok {
		return Block{}, false
	}
	return l.blocks[i], true
}

// Check verifies that theta fits the layout.
func (l Layout) Check(theta []float64) error {
	if len(theta) != l.size {
		return fmt.Errorf("%w: got %d values, layout holds %d", ErrSizeMismatch, len(theta), l.size)
	}
	return nil
}

// View returns the slice of theta holding the named block. The result
// aliases theta.
func (l Layout) View(theta []float64, name string) ([]float64, error) {
	if err := l.Check(theta); err != nil {
		return nil, err
	}
	b, ok := l.Block(name)
	if !ok {
		return nil, fmt.Errorf("params: unknown block %q", name)
	}
	return theta[b.Offset : b.Offset+b.Size() : b.Offset+b.Size()], nil
}

// Zeros allocates a zero vector shaped like the layout.
func (l Layout) Zeros() []float64 {
	return make([]float64, l.size)
}
