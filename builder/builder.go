package builder

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/integrity"
	"github.com/infinite-map/imap/ioprobe"
	"github.com/infinite-map/imap/placer"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// maxParallelReads bounds how many source files Build reads concurrently
// during the walk, grounded on aistore's fs/walk.go WalkBck, which fans
// out one errgroup.Go per mountpath rather than reading serially.
const maxParallelReads = 8

// FileEntry is one discovered source file, relative to the source
// directory's root.
type FileEntry struct {
	RelPath string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Walk discovers every regular file under sourceDir, skipping symlinks
// and unreadable entries (spec §4.11 step 1). Grounded on aistore's
// fs/walk.go, which drives godirwalk.Walk behind an Options struct of its
// own; ours is the flat, single-root case of that shape.
func Walk(sourceDir string) ([]FileEntry, error) {
	var out []FileEntry
	err := godirwalk.Walk(sourceDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if de.IsSymlink() {
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(sourceDir, path)
			if err != nil {
				rel = path
			}
			out = append(out, FileEntry{
				RelPath: filepath.ToSlash(rel),
				AbsPath: path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			glog.Warningf("builder: walk error at %s: %v", path, err)
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, ecode.Wrap(ecode.IoError, "builder.walk", sourceDir, err)
	}
	return out, nil
}

// readAllBounded reads every file's bytes concurrently, capped at
// maxParallelReads in flight, preserving files' order in the returned
// slice; an unreadable entry is logged and left nil rather than failing
// the whole build, matching Walk's own "skip unreadable" treatment.
func readAllBounded(files []FileEntry) [][]byte {
	out := make([][]byte, len(files))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxParallelReads)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				glog.Warningf("builder: skip unreadable %s: %v", f.AbsPath, err)
				return nil
			}
			out[i] = data
			return nil
		})
	}
	_ = g.Wait() // every worker only ever returns nil; errors are logged and skipped in place
	return out
}

// Result is Build()'s return value.
type Result struct {
	GridSize     int
	FilesWritten int
	BytesWritten int64
}

// Builder implements the Image Builder (spec §4.11, L11).
type Builder struct {
	cfg   config.Config
	store *integrity.Store
}

// New constructs a Builder. store may be nil to skip checksumming.
func New(cfg config.Config, store *integrity.Store) *Builder {
	return &Builder{cfg: cfg, store: store}
}

func clustersNeeded(size int64) int {
	return int((size + cmn.ClusterSize - 1) / cmn.ClusterSize)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// Build runs the full §4.11 pipeline: walk, sort by importance, place,
// write bodies, append the FAT and superblock, append the serialized VAT,
// and persist the image plus its sidecar metadata.
func (b *Builder) Build(sourceDir, outImagePath string) (Result, error) {
	files, err := Walk(sourceDir)
	if err != nil {
		return Result{}, err
	}

	gridSize, fatClusters := b.sizeGrid(files)
	if err := checkDiskSpace(outImagePath, int64(gridSize)*int64(gridSize)*4); err != nil {
		return Result{}, err
	}

	order := 0
	for 1<<uint(order) < gridSize {
		order++
	}
	curve := hilbert.New(order)
	v := vat.New(gridSize, curve)
	im, err := vio.NewImage(gridSize)
	if err != nil {
		return Result{}, err
	}

	sbAnchor, fatAnchors, err := reserveSystemClusters(v, im, fatClusters)
	if err != nil {
		return Result{}, err
	}

	type placed struct {
		entry      FileEntry
		chain      []vio.Location
		importance int
	}

	importances := make(map[string]int, len(files))
	for _, f := range files {
		importances[f.RelPath] = placer.Classify(f.RelPath, f.Size, nil)
	}
	sort.Slice(files, func(i, j int) bool {
		return importances[files[i].RelPath] > importances[files[j].RelPath]
	})

	bodies := readAllBounded(files)

	p := placer.New(v, b.cfg, nil)
	results := make([]placed, 0, len(files))
	var bytesWritten int64

	for i, f := range files {
		data := bodies[i]
		if data == nil {
			continue
		}
		chain, importance, err := p.Place(f.RelPath, int64(len(data)))
		if err != nil {
			return Result{}, ecode.Wrap(ecode.IoError, "builder.build", "place "+f.RelPath, err)
		}
		if err := writeFileBody(im, b.store, chain, data); err != nil {
			return Result{}, err
		}
		results = append(results, placed{entry: f, chain: chain, importance: importance})
		bytesWritten += int64(len(data))
	}

	fatBuf := make([]byte, 0, len(results)*fatEntrySize)
	for _, r := range results {
		e := fatEntry{
			Name:         r.entry.RelPath,
			FirstCluster: r.chain[0],
			Size:         uint32(r.entry.Size),
			MTime:        uint32(r.entry.ModTime.Unix()),
			FileType:     fatTypeFile,
			Importance:   uint8(r.importance),
		}
		fatBuf = append(fatBuf, e.encode()...)
	}
	if err := writeReservedBlob(im, fatAnchors, fatBuf); err != nil {
		return Result{}, err
	}

	vatDoc := v.ToSerialized()
	vatBytes, err := cmn.JSON.Marshal(vatDoc)
	if err != nil {
		return Result{}, ecode.Wrap(ecode.Corrupt, "builder.build", "marshal vat", err)
	}
	vatChain, err := v.Allocate("$system/vat", int64(len(vatBytes)), nil)
	if err != nil {
		return Result{}, ecode.Wrap(ecode.OutOfSpace, "builder.build", "allocate vat blob", err)
	}
	if err := writeReservedBlob(im, vatChain, vatBytes); err != nil {
		return Result{}, err
	}
	vatOffsetLinear, _ := vio.AnchorLinear(im, vatChain[0])

	center := v.Center()
	sb := superblock{
		GridSize:    uint16(gridSize),
		ClusterSize: cmn.ClusterSize,
		VATOffset:   uint32(vatOffsetLinear * 4),
		VATSize:     uint32(len(vatBytes)),
		CenterX:     uint16(center.X),
		CenterY:     uint16(center.Y),
		FATEntries:  uint32(len(results)),
	}
	if err := vio.WriteCluster(im, sbAnchor, sb.encode()); err != nil {
		return Result{}, err
	}

	if err := im.Save(outImagePath); err != nil {
		return Result{}, err
	}
	if err := writeSidecarMeta(outImagePath, gridSize, len(results), vatDoc); err != nil {
		return Result{}, err
	}

	return Result{GridSize: gridSize, FilesWritten: len(results), BytesWritten: bytesWritten}, nil
}

// sizeGrid picks the smallest power-of-two grid (at least cfg.GridSize)
// that fits the superblock, the FAT table, and every file's clusters,
// per spec §4.11 "picks the next power of two that fits before
// placement". It also reports how many clusters the FAT table needs.
func (b *Builder) sizeGrid(files []FileEntry) (gridSize int, fatClusters int) {
	fatBytes := int64(len(files)) * fatEntrySize
	fatClusters = clustersNeeded(fatBytes)
	if fatClusters == 0 {
		fatClusters = 1 // always reserve at least one FAT cluster, even for an empty build
	}

	var total int64 = cmn.ClusterSize // superblock
	total += int64(fatClusters) * cmn.ClusterSize
	for _, f := range files {
		total += int64(clustersNeeded(f.Size)) * cmn.ClusterSize
	}

	gridSize = b.cfg.GridSize
	for int64(gridSize)*int64(gridSize)*4 < total {
		gridSize = nextPow2(gridSize * 2)
	}
	return gridSize, fatClusters
}

// reserveSystemClusters claims the first 1+fatClusters cluster starts
// (in increasing Hilbert-linear order) for the superblock and FAT table,
// via dedicated $system VAT paths so ordinary file placement never lands
// on them.
func reserveSystemClusters(v *vat.VAT, im *vio.Image, fatClusters int) (sbAnchor vio.Location, fatAnchors []vio.Location, err error) {
	sbAnchor, err = reserveOneCluster(v, im, "$system/superblock", 0)
	if err != nil {
		return vio.Location{}, nil, err
	}
	fatAnchors = make([]vio.Location, fatClusters)
	for i := 0; i < fatClusters; i++ {
		loc, err := reserveOneCluster(v, im, fatPathFor(i), uint64(1+i)*cmn.CellsPerClu)
		if err != nil {
			return vio.Location{}, nil, err
		}
		fatAnchors[i] = loc
	}
	return sbAnchor, fatAnchors, nil
}

func fatPathFor(i int) string {
	return "$system/fat/" + strconv.Itoa(i)
}

func reserveOneCluster(v *vat.VAT, im *vio.Image, path string, linear uint64) (vio.Location, error) {
	x, y, err := im.Curve().LinearToXY(linear)
	if err != nil {
		return vio.Location{}, ecode.Wrap(ecode.OutOfBounds, "builder.reserve", path, err)
	}
	preferred := vio.Location{X: x, Y: y}
	chain, err := v.Allocate(path, cmn.ClusterSize, &preferred)
	if err != nil {
		return vio.Location{}, ecode.Wrap(ecode.OutOfSpace, "builder.reserve", path, err)
	}
	return chain[0], nil
}

// writeFileBody splits data into cluster-sized, zero-padded chunks and
// writes each into the corresponding member of chain, per spec §4.1
// ordering; when store is non-nil it also computes the cluster's
// checksum (spec §4.4).
func writeFileBody(im *vio.Image, store *integrity.Store, chain []vio.Location, data []byte) error {
	for i, loc := range chain {
		start := i * cmn.ClusterSize
		end := start + cmn.ClusterSize
		buf := make([]byte, cmn.ClusterSize)
		if start < len(data) {
			copy(buf, data[start:min(end, len(data))])
		}
		if err := vio.WriteCluster(im, loc, buf); err != nil {
			return err
		}
		if store != nil {
			if _, err := store.ComputeChecksum(buf, loc.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeReservedBlob writes an arbitrary byte blob across a pre-allocated
// chain, zero-padding the final cluster.
func writeReservedBlob(im *vio.Image, chain []vio.Location, data []byte) error {
	for i, loc := range chain {
		start := i * cmn.ClusterSize
		end := start + cmn.ClusterSize
		buf := make([]byte, cmn.ClusterSize)
		if start < len(data) {
			copy(buf, data[start:min(end, len(data))])
		}
		if err := vio.WriteCluster(im, loc, buf); err != nil {
			return err
		}
	}
	return nil
}

// sidecarMeta mirrors the embedded out-of-band records spec §6.1
// requires, duplicated into a companion JSON file since the standard
// image/png encoder vio.Image.Save uses does not expose custom text
// chunks.
type sidecarMeta struct {
	Type           string      `json:"type"`
	Version        string      `json:"version"`
	GridSize       int         `json:"grid_size"`
	SpatialStorage bool        `json:"spatial_storage"`
	VATEntries     int         `json:"vat_entries"`
	InfiniteMapVAT interface{} `json:"InfiniteMap-VAT"`
}

func writeSidecarMeta(imagePath string, gridSize, vatEntries int, vatDoc interface{}) error {
	meta := sidecarMeta{
		Type:           "infinite-map-v2",
		Version:        "2.0.0",
		GridSize:       gridSize,
		SpatialStorage: true,
		VATEntries:     vatEntries,
		InfiniteMapVAT: vatDoc,
	}
	b, err := cmn.JSON.MarshalIndent(meta, "", "  ")
	if err != nil {
		return ecode.Wrap(ecode.Corrupt, "builder.write_sidecar_meta", "marshal", err)
	}
	if err := os.WriteFile(imagePath+".meta.json", b, 0o644); err != nil {
		return ecode.Wrap(ecode.IoError, "builder.write_sidecar_meta", "write", err)
	}
	return nil
}

// checkDiskSpace consults the real filesystem before committing to a
// grid size (spec §4.11 "the builder is the only component allowed to
// grow the grid"), so a Save() that would exhaust the target filesystem
// fails fast instead of leaving a half-written image.
func checkDiskSpace(outImagePath string, requiredBytes int64) error {
	dir := filepath.Dir(outImagePath)
	free, _, err := ioprobe.FreeSpace(dir)
	if err != nil {
		glog.V(2).Infof("builder: free-space probe unavailable for %s: %v", dir, err)
		return nil
	}
	if int64(free) < requiredBytes {
		return ecode.New(ecode.OutOfSpace, "builder.build", "insufficient free space for target image size")
	}
	return nil
}
