package cache

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cfcache/cfcache/internal/artifact"
	"github.com/cfcache/cfcache/internal/coords"
)

var oneDegree = coords.Radians(1)

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrDirRequired) {
		t.Fatalf("expected ErrDirRequired, got %v", err)
	}
}

func TestNewRejectsNegativeTolerance(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir(), Tolerance: -1}); err == nil {
		t.Fatalf("negative tolerance should fail")
	}
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c := Disabled(nil)
	art := sampleArtifact(t, 4, 4, 1, 1, 0)

	slot, err := c.CacheArtifact(0.1, art, []int{1}, []int{1}, 1, QualifierPrimary, true)
	if err != nil || slot != -1 {
		t.Fatalf("disabled cache should return -1, got (%d, %v)", slot, err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush on disabled cache: %v", err)
	}
	if err := c.InitCache(); err != nil {
		t.Fatalf("InitCache on disabled cache: %v", err)
	}
	if hit, _, err := c.Locate(QualifierPrimary, 1, 0.1, oneDegree); hit != Miss || err != nil {
		t.Fatalf("disabled cache should miss, got (%v, %v)", hit, err)
	}
	if status := c.LoadAveragePrimaryBeam(&artifact.Artifact{}, "X"); status != NotCached {
		t.Fatalf("disabled cache should report not cached")
	}
}

func TestCacheArtifactIsIdempotentWithinTolerance(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 8, 8, 1, 1, 0)

	first, err := c.CacheArtifact(coords.Radians(30), art, []int{5}, []int{5}, 2, QualifierPrimary, false)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	second, err := c.CacheArtifact(coords.Radians(30.4), art, []int{6}, []int{6}, 3, QualifierPrimary, false)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	if first != second {
		t.Fatalf("same bucket should reuse slot: %d vs %d", first, second)
	}
	if c.Index().Len() != 1 {
		t.Fatalf("expected a single index row, got %d", c.Index().Len())
	}
	if c.Index().Sampling(first) != 2 || c.Index().Supports(first)[0] != (Support{5, 5}) {
		t.Fatalf("first write must win, got %+v", c.Index().Rows()[first])
	}

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush 失败: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(c.Dir(), IndexFileName))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(raw)), "\n"); len(lines) != 2 || lines[0] != "1 1" {
		t.Fatalf("unexpected index content %q", string(raw))
	}
}

func TestCacheArtifactRejectsSupportMismatch(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 4, 4, 2, 1, 0)
	if _, err := c.CacheArtifact(0, art, []int{1}, []int{1}, 1, QualifierPrimary, false); err == nil {
		t.Fatalf("supports shorter than the plane count should fail")
	}
}

func TestRoundTripThroughDisk(t *testing.T) {
	c := newTestCache(t)
	angle := coords.Radians(42)
	art := sampleArtifact(t, 16, 16, 3, 2, 1)

	slot, err := c.CacheArtifact(angle, art, []int{7, 5, 3}, []int{6, 4, 2}, 4, QualifierPrimary, false)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	c.ClearMemory()

	hit, entry, err := c.Locate(QualifierPrimary, 3, angle, oneDegree)
	if err != nil {
		t.Fatalf("Locate 失败: %v", err)
	}
	if hit != DiskHit {
		t.Fatalf("expected disk hit, got %v", hit)
	}
	if entry.Slot != slot || entry.Sampling != 4 || math.Abs(entry.Angle-angle) > 1e-12 {
		t.Fatalf("metadata mismatch: %+v", entry)
	}
	if diff := cmp.Diff([]Support{{7, 6}, {5, 4}, {3, 2}}, entry.Supports); diff != "" {
		t.Fatalf("supports mismatch (-want +got):\n%s", diff)
	}
	if entry.Artifact.Shape != art.Shape {
		t.Fatalf("shape mismatch: %v vs %v", entry.Artifact.Shape, art.Shape)
	}
	if diff := cmp.Diff(art.Data, entry.Artifact.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if entry.Artifact.Coords.Domain != coords.DomainFourier || entry.Artifact.Coords.RefPixel != [2]float64{8, 8} {
		t.Fatalf("persisted planes should carry the converted frame, got %+v", entry.Artifact.Coords)
	}

	hit, again, err := c.Locate(QualifierPrimary, 3, angle, oneDegree)
	if err != nil || hit != MemHit || again != entry {
		t.Fatalf("second lookup should hit memory, got (%v, %v)", hit, err)
	}
}

func TestPersistRepresentativePromotesToMemory(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 4, 4, 1, 1, 0)
	if _, err := c.CacheArtifact(0.2, art, []int{2}, []int{2}, 1, QualifierWeighted, true); err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	hit, entry, err := c.Locate(QualifierWeighted, 1, 0.2, oneDegree)
	if err != nil || hit != MemHit || entry.Artifact != art {
		t.Fatalf("expected memory hit on the supplied artifact, got (%v, %v)", hit, err)
	}
	if c.Memory().SizeBytes() != art.SizeBytes() {
		t.Fatalf("memory accounting mismatch: %d", c.Memory().SizeBytes())
	}
	if _, _, err := c.Locate(QualifierPrimary, 1, 0.2, oneDegree); !errors.Is(err, ErrReadPlane) {
		t.Fatalf("primary planes were never written for this slot, expected ErrReadPlane, got %v", err)
	}
}

func TestToleranceSemantics(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 8, 8, 1, 1, 0)
	if _, err := c.CacheArtifact(coords.Radians(10), art, []int{7}, []int{7}, 2, QualifierPrimary, false); err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	c.ClearMemory()

	hit, entry, err := c.Locate(QualifierPrimary, 1, coords.Radians(10.3), oneDegree)
	if err != nil {
		t.Fatalf("Locate 失败: %v", err)
	}
	if hit == Miss || entry.Supports[0] != (Support{7, 7}) {
		t.Fatalf("10.3° should hit the 10° slot, got %v %+v", hit, entry)
	}

	hit, entry, err = c.Locate(QualifierPrimary, 1, coords.Radians(10.5), oneDegree)
	if err != nil || hit != MemHit || entry.Slot != 0 {
		t.Fatalf("θ+δ/2 should hit slot 0 in memory, got (%v, %v)", hit, err)
	}
	if hit, _, err := c.Locate(QualifierPrimary, 1, coords.Radians(12), oneDegree); hit != Miss || err != nil {
		t.Fatalf("θ+2δ should miss, got (%v, %v)", hit, err)
	}
	if hit, _, err := c.Locate(QualifierPrimary, 1, coords.Radians(15), oneDegree); hit != Miss || err != nil {
		t.Fatalf("15° should miss, got (%v, %v)", hit, err)
	}
}

func TestFlushInitCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := newTestCacheAt(t, dir)
	art := sampleArtifact(t, 4, 4, 2, 1, 0)
	angles := []float64{coords.Radians(-60), coords.Radians(0.5), coords.Radians(33.3)}
	for i, angle := range angles {
		if _, err := c.CacheArtifact(angle, art, []int{i + 1, i + 2}, []int{i + 3, i + 4}, float64(i)+0.5, QualifierPrimary, false); err != nil {
			t.Fatalf("CacheArtifact 失败: %v", err)
		}
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush 失败: %v", err)
	}

	fresh := newTestCacheAt(t, dir)
	if err := fresh.InitCache(); err != nil {
		t.Fatalf("InitCache 失败: %v", err)
	}
	if diff := cmp.Diff(c.Index().Rows(), fresh.Index().Rows(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("index mismatch after reload (-want +got):\n%s", diff)
	}
	if fresh.Memory().SizeBytes() != 0 {
		t.Fatalf("InitCache must only restore metadata")
	}

	hit, entry, err := fresh.Locate(QualifierPrimary, 2, coords.Radians(33.3), oneDegree)
	if err != nil || hit != DiskHit || entry.Slot != 2 {
		t.Fatalf("reloaded cache should find slot 2 on disk, got (%v, %+v, %v)", hit, entry, err)
	}
}

func TestInitCacheWithoutIndexStartsEmpty(t *testing.T) {
	c := newTestCache(t)
	if err := c.InitCache(); err != nil {
		t.Fatalf("missing aux.dat should not be an error: %v", err)
	}
	if c.Index().Len() != 0 {
		t.Fatalf("expected empty index")
	}
}

func TestInitCacheMalformedIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)
	if err := os.WriteFile(path, []byte("2 1\n10 7 7 2\n"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	c := newTestCacheAt(t, dir)
	err := c.InitCache()
	if !errors.Is(err, ErrIndexParse) {
		t.Fatalf("expected ErrIndexParse, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("error should name the index path, got %v", err)
	}
}

func TestInitCacheRejectsIndexShorterThanCurrent(t *testing.T) {
	for _, persist := range []bool{true, false} {
		t.Run(fmt.Sprintf("persistRepresentative=%v", persist), func(t *testing.T) {
			dir := t.TempDir()
			c := newTestCacheAt(t, dir)
			art := sampleArtifact(t, 4, 4, 1, 1, 0)
			if _, err := c.CacheArtifact(0, art, []int{1}, []int{1}, 1, QualifierPrimary, false); err != nil {
				t.Fatalf("CacheArtifact 失败: %v", err)
			}
			if err := c.Flush(); err != nil {
				t.Fatalf("Flush 失败: %v", err)
			}
			if _, err := c.CacheArtifact(1, art, []int{1}, []int{1}, 1, QualifierPrimary, persist); err != nil {
				t.Fatalf("CacheArtifact 失败: %v", err)
			}
			if err := c.InitCache(); !errors.Is(err, ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
			if c.Index().Len() != 2 || c.Index().Angle(1) != 1 {
				t.Fatalf("failed InitCache must keep the current index, got %+v", c.Index().Rows())
			}
		})
	}
}

func TestDiskMetadataOverridesMemory(t *testing.T) {
	c := newTestCache(t)
	angle := coords.Radians(20)
	art := sampleArtifact(t, 8, 8, 1, 1, 0)
	slot, err := c.CacheArtifact(angle, art, []int{5}, []int{5}, 2, QualifierPrimary, true)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}

	disk := c.Disk()
	name := disk.PlaneName(QualifierPrimary, 0, slot)
	stored, err := disk.readArtifact(name)
	if err != nil {
		t.Fatalf("read plane: %v", err)
	}
	stored.Header["Xsupport"] = []int{9}
	stored.Header["Ysupport"] = []int{9}
	if _, err := disk.writeArtifact(name, stored); err != nil {
		t.Fatalf("rewrite plane: %v", err)
	}

	c.ClearMemory()
	hit, entry, err := disk.LoadSlot(c.Index(), c.Memory(), QualifierPrimary, slot, 1)
	if err != nil {
		t.Fatalf("LoadSlot 失败: %v", err)
	}
	if hit != DiskHit {
		t.Fatalf("expected disk hit, got %v", hit)
	}
	if entry.Supports[0] != (Support{9, 9}) {
		t.Fatalf("disk header should win, got %+v", entry.Supports)
	}
	if c.Index().Supports(slot)[0] != (Support{9, 9}) {
		t.Fatalf("index should be reconciled from disk, got %+v", c.Index().Supports(slot))
	}
}

func TestLoadSlotMissingPlaneInstallsNothing(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 4, 4, 2, 1, 0)
	slot, err := c.CacheArtifact(0.7, art, []int{1, 2}, []int{1, 2}, 1, QualifierPrimary, false)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	missing := c.Disk().PlaneName(QualifierPrimary, 1, slot)
	if err := os.Remove(filepath.Join(c.Dir(), missing)); err != nil {
		t.Fatalf("remove plane: %v", err)
	}

	hit, entry, err := c.Locate(QualifierPrimary, 2, 0.7, oneDegree)
	if !errors.Is(err, ErrReadPlane) {
		t.Fatalf("expected ErrReadPlane, got %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Fatalf("error should name the missing file, got %v", err)
	}
	if hit != Miss || entry != nil {
		t.Fatalf("failed load must not return an entry")
	}
	if c.Memory().Get(QualifierPrimary, slot) != nil {
		t.Fatalf("no partial entry may be installed")
	}
}

func TestLocateOutOfRangeSlotIsInvariantViolation(t *testing.T) {
	idx := NewAngleIndex()
	idx.RecordMetadata(0, 0, []Support{{1, 1}}, 1, false)
	if err := idx.checkSlot(3); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if err := idx.checkSlot(0); err != nil {
		t.Fatalf("in-range slot should pass, got %v", err)
	}
}

func TestAveragePrimaryBeamIndependence(t *testing.T) {
	c := newTestCache(t)
	avg := sampleArtifact(t, 8, 8, 1, 4, 3)
	avg.Header = artifact.Header{"note": "avg"}

	if err := c.FlushAverage(avg, "X"); err != nil {
		t.Fatalf("FlushAverage 失败: %v", err)
	}
	if !c.AverageReady("X") || c.AverageReady("Y") {
		t.Fatalf("readiness should track explicit flushes only")
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), IndexFileName)); err != nil {
		t.Fatalf("FlushAverage should flush the index too: %v", err)
	}

	target := &artifact.Artifact{}
	if status := c.LoadAveragePrimaryBeam(target, "X"); status != CacheHit {
		t.Fatalf("expected cache hit, got %v", status)
	}
	if target.Shape != avg.Shape || target.Coords != avg.Coords {
		t.Fatalf("shape/coords mismatch: %v %+v", target.Shape, target.Coords)
	}
	if diff := cmp.Diff(avg.Data, target.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	if status := c.LoadAveragePrimaryBeam(&artifact.Artifact{}, "Y"); status != NotCached {
		t.Fatalf("never-flushed qualifier should be not cached, got %v", status)
	}
}

func TestAveragePrimaryBeamCorruptFileIsNotCached(t *testing.T) {
	c := newTestCache(t)
	path := filepath.Join(c.Dir(), "avgPBZ")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if status := c.LoadAveragePrimaryBeam(&artifact.Artifact{}, "Z"); status != NotCached {
		t.Fatalf("corrupt file should map to not cached, got %v", status)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("undecodable average beam should be removed, stat err=%v", err)
	}
	if _, ok := c.AverageFile("Z"); ok {
		t.Fatalf("removed file must not be reported")
	}
}

func TestSummary(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 4, 4, 1, 1, 0)
	if _, err := c.CacheArtifact(0.3, art, []int{2}, []int{3}, 1.5, QualifierPrimary, true); err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	s := c.Summary()
	if !s.Enabled || s.PlaneCount != 1 || len(s.Rows) != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if diff := cmp.Diff(map[string][]int{QualifierPrimary: {0}}, s.Resident); diff != "" {
		t.Fatalf("resident mismatch (-want +got):\n%s", diff)
	}
	if s.MemoryBytes != art.SizeBytes() {
		t.Fatalf("memory bytes mismatch: %d", s.MemoryBytes)
	}
}

func TestCustomCodecsAreUsed(t *testing.T) {
	dir := t.TempDir()
	counts := &codecCalls{}
	c, err := New(Options{
		Dir:        dir,
		IndexCodec: countingIndexCodec{calls: counts},
	})
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush 失败: %v", err)
	}
	if counts.encode != 1 {
		t.Fatalf("custom index codec should encode, calls=%d", counts.encode)
	}

	reloaded, err := New(Options{Dir: dir, IndexCodec: countingIndexCodec{calls: counts}})
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	if err := reloaded.InitCache(); err != nil {
		t.Fatalf("InitCache 失败: %v", err)
	}
	if counts.decode != 1 {
		t.Fatalf("InitCache should decode through the injected codec, calls=%d", counts.decode)
	}
}

type codecCalls struct {
	encode int
	decode int
}

type countingIndexCodec struct {
	calls *codecCalls
}

func (c countingIndexCodec) Encode(w io.Writer, rows []IndexRow, planes int) error {
	c.calls.encode++
	return TextIndexCodec{}.Encode(w, rows, planes)
}

func (c countingIndexCodec) Decode(r io.Reader) ([]IndexRow, int, error) {
	c.calls.decode++
	return TextIndexCodec{}.Decode(r)
}

func TestQualifiersCannotShareFileNames(t *testing.T) {
	c := newTestCache(t)
	if a, b := c.Disk().PlaneName("w1", 0, 3), c.Disk().PlaneName("w", 10, 3); a != b {
		t.Fatalf("test premise: expected colliding names, got %q and %q", a, b)
	}

	art := sampleArtifact(t, 4, 4, 1, 1, 0)
	if _, err := c.CacheArtifact(0.1, art, []int{1}, []int{1}, 1, "w1", false); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("qualifier ending in a digit should be rejected, got %v", err)
	}
	if c.Index().Len() != 0 {
		t.Fatalf("rejected qualifier must not touch the index")
	}
	if _, _, err := c.Locate("w1", 1, 0.1, oneDegree); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("Locate should reject the qualifier, got %v", err)
	}
	if err := c.FlushAverage(art, "bad/name"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("FlushAverage should reject the qualifier, got %v", err)
	}
	if _, err := c.Disk().PersistPlane("w1", 0, 0, art, PlaneMeta{XSupport: []int{1}, YSupport: []int{1}}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("PersistPlane should reject the qualifier, got %v", err)
	}
	if _, err := c.CacheArtifact(0.1, art, []int{1}, []int{1}, 1, "w_1a", false); err != nil {
		t.Fatalf("digits inside a qualifier are fine: %v", err)
	}
}

func TestNewRejectsInvalidPrefix(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir(), Prefix: "../CF"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestLocateOverflowingPlaneShapeIsReadError(t *testing.T) {
	c := newTestCache(t)
	art := sampleArtifact(t, 4, 4, 1, 1, 0)
	slot, err := c.CacheArtifact(0.2, art, []int{1}, []int{1}, 1, QualifierPrimary, false)
	if err != nil {
		t.Fatalf("CacheArtifact 失败: %v", err)
	}
	name := c.Disk().PlaneName(QualifierPrimary, 0, slot)
	path := filepath.Join(c.Dir(), name)
	if err := os.WriteFile(path, overflowingPlaneFile(t, art), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_, _, err = c.Locate(QualifierPrimary, 1, 0.2, oneDegree)
	if !errors.Is(err, ErrReadPlane) || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected ErrReadPlane naming %s, got %v", path, err)
	}
	if c.Memory().Get(QualifierPrimary, slot) != nil {
		t.Fatalf("no entry may be installed")
	}
}

func TestAverageFileIsStatOnly(t *testing.T) {
	c := newTestCache(t)
	if _, ok := c.AverageFile(QualifierPrimary); ok {
		t.Fatalf("no average beam written yet")
	}
	avg := sampleArtifact(t, 4, 4, 1, 1, 0)
	if err := c.FlushAverage(avg, QualifierPrimary); err != nil {
		t.Fatalf("FlushAverage 失败: %v", err)
	}
	entry, ok := c.AverageFile(QualifierPrimary)
	if !ok || entry.Name != "avgPBprimary" || entry.SizeBytes == 0 {
		t.Fatalf("unexpected average file entry %+v", entry)
	}
	if _, ok := c.AverageFile("w1"); ok {
		t.Fatalf("invalid qualifier must not resolve to a file")
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return newTestCacheAt(t, t.TempDir())
}

func newTestCacheAt(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := New(Options{Dir: dir, Tolerance: oneDegree})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}
