package vio

import (
	"bufio"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
)

// Image is the backing N x N, 4-byte-cell raster (spec §6.1). It owns the
// raw pixel buffer and the Hilbert curve used to linearize it. Per spec
// §5 "the backing image file is opened exclusively by the writer" -- a
// single in-process Image may still be shared by many readers, guarded by
// an internal RWMutex so that no reader observes a half-written cell. The
// lock is taken per cell, so a ReadCluster that overlaps a WriteCluster of
// the same cluster can return a mix of old and new cells.
type Image struct {
	mu       sync.RWMutex
	gridSize int
	pix      []byte // len == 4 * gridSize * gridSize, RGBA-ordered cells
	curve    *hilbert.Curve
}

// NewImage allocates a fresh, zeroed image of the given grid side (must be
// a power of two).
func NewImage(gridSize int) (*Image, error) {
	order := orderOf(gridSize)
	if order < 0 {
		return nil, ecode.New(ecode.OutOfBounds, "vio.new_image", "grid_size must be a power of two")
	}
	return &Image{
		gridSize: gridSize,
		pix:      make([]byte, 4*gridSize*gridSize),
		curve:    hilbert.New(order),
	}, nil
}

func orderOf(n int) int {
	if n <= 0 || n&(n-1) != 0 {
		return -1
	}
	order := 0
	for 1<<uint(order) < n {
		order++
	}
	return order
}

func (im *Image) GridSize() int           { return im.gridSize }
func (im *Image) Curve() *hilbert.Curve   { return im.curve }

// Grow reallocates the image to a larger power-of-two grid, copying
// existing pixel data by Hilbert-linear offset (not by raw byte offset,
// since a resized grid re-linearizes every coordinate). Only the Image
// Builder calls this, per spec §4.11 "the builder is the only component
// allowed to grow the grid".
func (im *Image) Grow(newGridSize int) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if newGridSize <= im.gridSize {
		return ecode.New(ecode.InvariantViolated, "vio.grow", "new grid size must exceed current")
	}
	order := orderOf(newGridSize)
	if order < 0 {
		return ecode.New(ecode.OutOfBounds, "vio.grow", "grid_size must be a power of two")
	}
	newCurve := hilbert.New(order)
	newPix := make([]byte, 4*newGridSize*newGridSize)
	oldN := uint64(im.gridSize) * uint64(im.gridSize)
	for t := uint64(0); t < oldN; t++ {
		x, y, _ := im.curve.LinearToXY(t)
		newT, _ := newCurve.XYToLinear(x, y)
		copy(newPix[newT*4:newT*4+4], im.pix[t*4:t*4+4])
	}
	im.gridSize = newGridSize
	im.pix = newPix
	im.curve = newCurve
	return nil
}

// ReadCell returns the 4 bytes of the cell at linear offset t.
func (im *Image) ReadCell(t uint64) []byte {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]byte, 4)
	copy(out, im.pix[t*4:t*4+4])
	return out
}

// WriteCell overwrites the 4 bytes of the cell at linear offset t.
func (im *Image) WriteCell(t uint64, data []byte) {
	im.mu.Lock()
	defer im.mu.Unlock()
	copy(im.pix[t*4:t*4+4], data[:4])
}

// Load decodes a PNG-encoded backing image from path. Go's standard
// image/png is used rather than a third-party codec: none of the
// retrieval pack's example repos wire in a PNG/image library, so this is
// the one component in the tree built on the standard library by
// necessity rather than domain-dep starvation (see DESIGN.md).
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ecode.Wrap(ecode.IoError, "vio.load", "open", err)
	}
	defer f.Close()
	img, err := png.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, ecode.Wrap(ecode.Corrupt, "vio.load", "decode png", err)
	}
	bounds := img.Bounds()
	gridSize := bounds.Dx()
	if gridSize != bounds.Dy() {
		return nil, ecode.New(ecode.Corrupt, "vio.load", "image must be square")
	}
	out, err := NewImage(gridSize)
	if err != nil {
		return nil, err
	}
	rgba, ok := img.(*image.NRGBA)
	if ok {
		copy(out.pix, rgba.Pix)
		return out, nil
	}
	// Slow path for any other concrete image.Image.
	i := 0
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.pix[i] = byte(r >> 8)
			out.pix[i+1] = byte(g >> 8)
			out.pix[i+2] = byte(b >> 8)
			out.pix[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out, nil
}

// Save encodes the image as PNG to path (write-to-temp + atomic rename,
// per spec §7 persistence rule).
func (im *Image) Save(path string) error {
	im.mu.RLock()
	defer im.mu.RUnlock()
	nrgba := &image.NRGBA{
		Pix:    im.pix,
		Stride: 4 * im.gridSize,
		Rect:   image.Rect(0, 0, im.gridSize, im.gridSize),
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vio-image-*.png")
	if err != nil {
		return ecode.Wrap(ecode.IoError, "vio.save", "create temp", err)
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	if err := png.Encode(w, nrgba); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ecode.Wrap(ecode.IoError, "vio.save", "encode png", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ecode.Wrap(ecode.IoError, "vio.save", "flush", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ecode.Wrap(ecode.IoError, "vio.save", "close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ecode.Wrap(ecode.IoError, "vio.save", "rename", err)
	}
	return nil
}
