package e2e_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/infinite-map/imap/builder"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/dbdriver"
	"github.com/infinite-map/imap/engine"
	"github.com/infinite-map/imap/integrity"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// buildS1 writes the literal S1 source tree (boot/vmlinuz 600B,
// lib/libc.so 400B, readme.txt 50B) under a temp dir, packs it with
// N=256, and returns the resulting image path, the Store the build used
// and its db -- callers open the Engine over this same db (openEngine) so
// the checksums recorded at build time line up.
func buildS1(dir string) (imagePath string, store *integrity.Store, db dbdriver.Driver) {
	src := filepath.Join(dir, "src")
	Expect(os.MkdirAll(filepath.Join(src, "boot"), 0o755)).To(Succeed())
	Expect(os.MkdirAll(filepath.Join(src, "lib"), 0o755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(src, "boot", "vmlinuz"), bytesOfLen(600), 0o644)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(src, "lib", "libc.so"), bytesOfLen(400), 0o644)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(src, "readme.txt"), bytesOfLen(50), 0o644)).To(Succeed())

	db, err := dbdriver.NewBuntDB(":memory:")
	Expect(err).NotTo(HaveOccurred())
	store = integrity.NewStore(db, integrity.SHA256)

	cfg := config.Default(256)
	b := builder.New(cfg, store)
	imagePath = filepath.Join(dir, "image.imap")
	result, err := b.Build(src, imagePath)
	Expect(err).NotTo(HaveOccurred())
	Expect(result.FilesWritten).To(Equal(3))
	return imagePath, store, db
}

func bytesOfLen(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

// openEngine loads imagePath + its sidecar VAT document and wires an
// Engine sharing db (so checksums recorded at build time stay visible).
func openEngine(dir, imagePath string, db dbdriver.Driver) *engine.Engine {
	im, err := vio.Load(imagePath)
	Expect(err).NotTo(HaveOccurred())

	raw, err := os.ReadFile(imagePath + ".meta.json")
	Expect(err).NotTo(HaveOccurred())
	var sc struct {
		InfiniteMapVAT struct {
			Format           string                    `json:"format"`
			Version          string                    `json:"version"`
			GridSize         int                       `json:"grid_size"`
			Center           [2]uint32                 `json:"center"`
			Entries          map[string][][2]uint32    `json:"entries"`
			DirectoryEntries []string                  `json:"directory_entries"`
			RSProtected      map[string]bool           `json:"rs_protected"`
		} `json:"InfiniteMap-VAT"`
	}
	Expect(decodeJSON(raw, &sc)).To(Succeed())
	doc := vat.Document{
		Format:           sc.InfiniteMapVAT.Format,
		Version:          sc.InfiniteMapVAT.Version,
		GridSize:         sc.InfiniteMapVAT.GridSize,
		Center:           sc.InfiniteMapVAT.Center,
		Entries:          sc.InfiniteMapVAT.Entries,
		DirectoryEntries: sc.InfiniteMapVAT.DirectoryEntries,
		RSProtected:      sc.InfiniteMapVAT.RSProtected,
	}
	v, err := vat.FromSerialized(doc, im.Curve())
	Expect(err).NotTo(HaveOccurred())

	e, err := engine.New(config.Default(im.GridSize()), v, im, engine.Deps{
		DB:           db,
		SnapshotsDir: filepath.Join(dir, "snapshots"),
	})
	Expect(err).NotTo(HaveOccurred())
	return e
}

var _ = Describe("build-and-lookup (S1)", func() {
	It("places every path and classifies importance by zone distance", func() {
		dir, err := os.MkdirTemp("", "imap-s1")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		imagePath, _, db := buildS1(dir)
		e := openEngine(dir, imagePath, db)
		defer e.Close()

		center := e.VAT().Center()
		for _, path := range []string{"boot/vmlinuz", "lib/libc.so", "readme.txt"} {
			_, ok := e.VAT().Lookup(path)
			Expect(ok).To(BeTrue(), "expected %s in the VAT", path)
		}

		vmlinuzLoc, _ := e.VAT().Lookup("boot/vmlinuz")
		Expect(vmlinuzLoc.DistanceTo(center)).To(BeNumerically("<", 4))

		readmeLoc, _ := e.VAT().Lookup("readme.txt")
		Expect(readmeLoc.DistanceTo(center)).To(BeNumerically(">=", 16))
	})
})

var _ = Describe("corrupt-and-scan (S2)", func() {
	It("detects a single corrupted cluster", func() {
		dir, err := os.MkdirTemp("", "imap-s2")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		imagePath, _, db := buildS1(dir)
		e := openEngine(dir, imagePath, db)
		defer e.Close()

		loc, ok := e.VAT().Lookup("lib/libc.so")
		Expect(ok).To(BeTrue())
		buf, err := vio.ReadCluster(e.Image(), loc)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 8; i++ {
			buf[i] ^= 0xFF
		}
		Expect(vio.WriteCluster(e.Image(), loc, buf)).To(Succeed())

		report, err := e.Scan(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Corrupted).To(Equal(1))

		var corruptedPath string
		for _, cr := range report.Clusters {
			if cr.Status == integrity.StatusCorrupted {
				corruptedPath = cr.Path
			}
		}
		Expect(corruptedPath).To(Equal("lib/libc.so"))
	})
})

var _ = Describe("repair-from-backup (S3)", func() {
	It("restores a corrupted cluster from the backup directory", func() {
		dir, err := os.MkdirTemp("", "imap-s3")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		imagePath, _, db := buildS1(dir)
		e := openEngine(dir, imagePath, db)
		defer e.Close()

		loc, ok := e.VAT().Lookup("lib/libc.so")
		Expect(ok).To(BeTrue())
		original, err := vio.ReadCluster(e.Image(), loc)
		Expect(err).NotTo(HaveOccurred())

		backupDir := filepath.Join(dir, "backup")
		Expect(os.MkdirAll(backupDir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(backupDir, loc.ID()), original, 0o644)).To(Succeed())

		corrupted := append([]byte(nil), original...)
		for i := 0; i < 8; i++ {
			corrupted[i] ^= 0xFF
		}
		Expect(vio.WriteCluster(e.Image(), loc, corrupted)).To(Succeed())

		result, err := e.Repair([]vio.Location{loc}, integrity.RepairSources{BackupDir: backupDir})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Repaired).To(Equal(1))

		report, err := e.Scan(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Corrupted).To(Equal(0))
	})
})

var _ = Describe("snapshot-restore (S4)", func() {
	It("brings a deleted file back after restoring a prior snapshot", func() {
		dir, err := os.MkdirTemp("", "imap-s4")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		imagePath, _, db := buildS1(dir)
		e := openEngine(dir, imagePath, db)
		defer e.Close()

		before, ok := e.VAT().Lookup("readme.txt")
		Expect(ok).To(BeTrue())

		meta, err := e.Snapshot("before delete")
		Expect(err).NotTo(HaveOccurred())

		Expect(e.DeleteFile("readme.txt")).To(Succeed())
		_, ok = e.VAT().Lookup("readme.txt")
		Expect(ok).To(BeFalse())

		Expect(e.RestoreSnapshot(meta.SnapshotID)).To(Succeed())
		after, ok := e.VAT().Lookup("readme.txt")
		Expect(ok).To(BeTrue())
		Expect(after).To(Equal(before))
	})
})

var _ = Describe("migrate-hot (S5)", func() {
	It("moves a frequently accessed cold file closer to center", func() {
		dir, err := os.MkdirTemp("", "imap-s5")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		imagePath, _, db := buildS1(dir)
		e := openEngine(dir, imagePath, db)
		defer e.Close()

		center := e.VAT().Center()
		before, ok := e.VAT().Lookup("readme.txt")
		Expect(ok).To(BeTrue())
		beforeDist := before.DistanceTo(center)

		for i := 0; i < 100; i++ {
			_, err := e.ReadFile("readme.txt")
			Expect(err).NotTo(HaveOccurred())
		}

		_, results, err := e.TuneZoneDistribution()
		Expect(err).NotTo(HaveOccurred())
		Expect(results).NotTo(BeEmpty())

		after, ok := e.VAT().Lookup("readme.txt")
		Expect(ok).To(BeTrue())
		Expect(after.DistanceTo(center)).To(BeNumerically("<=", beforeDist*0.5))
	})
})

var _ = Describe("cache-LRU-eviction (S6)", func() {
	It("evicts the least recently used entry once over capacity", func() {
		c := newTestCache(10)
		c.Set("a", make([]byte, 5))
		c.Set("b", make([]byte, 5))
		c.Set("c", make([]byte, 5))

		_, ok := c.Get("a")
		Expect(ok).To(BeFalse())
		stats := c.Stats()
		Expect(stats.Evictions).To(Equal(int64(1)))

		b, ok := c.Get("b")
		Expect(ok).To(BeTrue())
		Expect(b).To(HaveLen(5))

		cc, ok := c.Get("c")
		Expect(ok).To(BeTrue())
		Expect(cc).To(HaveLen(5))
	})
})
