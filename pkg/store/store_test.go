package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/flashkv/flashkv/pkg/config"
	"github.com/flashkv/flashkv/pkg/entry"
	"github.com/flashkv/flashkv/pkg/flash"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.MaxKeys = 32
	return cfg
}

func newTestStore(t *testing.T, cfg *config.Config) (*Store, *flash.MemDevice) {
	t.Helper()

	dev, err := flash.NewMemDevice(cfg.SectorSize, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	if err := dev.Enable(); err != nil {
		t.Fatalf("Failed to enable device: %v", err)
	}
	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}
	s, err := New(partition, cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	return s, dev
}

// reopen builds a fresh store over the same device, as after a reboot.
func reopen(t *testing.T, dev *flash.MemDevice, cfg *config.Config) *Store {
	t.Helper()

	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}
	s, err := New(partition, cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	got, err := s.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(got, []byte("value")) {
		t.Errorf("Got %q, expected %q", got, "value")
	}
	if s.Size() != 1 {
		t.Errorf("Size = %d, expected 1", s.Size())
	}
}

func TestGetMissingKey(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if _, err := s.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got: %v", err)
	}
}

func TestPutEmptyValue(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("empty"), nil); err != nil {
		t.Fatalf("Failed to put empty value: %v", err)
	}
	got, err := s.Get([]byte("empty"))
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Got %d bytes, expected empty value", len(got))
	}
}

func TestInvalidKeysLeaveFlashUntouched(t *testing.T) {
	s, dev := newTestStore(t, testConfig())
	before := append([]byte(nil), dev.Bytes()...)

	if err := s.Put(nil, []byte("v")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for empty key, got: %v", err)
	}
	long := bytes.Repeat([]byte("k"), entry.MaxKeyLength+1)
	if err := s.Put(long, []byte("v")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for oversized key, got: %v", err)
	}
	if err := s.Delete(nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for empty key delete, got: %v", err)
	}

	if !bytes.Equal(dev.Bytes(), before) {
		t.Error("Rejected operations modified the flash contents")
	}
}

func TestMaxLengthKey(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	key := bytes.Repeat([]byte("?"), entry.MaxKeyLength)
	if err := s.Put(key, []byte("v")); err != nil {
		t.Fatalf("Failed to put max-length key: %v", err)
	}
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Got %q, expected %q", got, "v")
	}
}

func TestValueTooLarge(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestStore(t, cfg)

	// Larger than a sector can hold even after padding.
	huge := make([]byte, cfg.SectorSize)
	if err := s.Put([]byte("k"), huge); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("Expected ErrValueTooLarge, got: %v", err)
	}
}

func TestNotInitialized(t *testing.T) {
	cfg := testConfig()
	dev, err := flash.NewMemDevice(cfg.SectorSize, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}
	s, err := New(partition, cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := s.Put([]byte("k"), []byte("v")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Put before Init: expected ErrNotInitialized, got: %v", err)
	}
	if _, err := s.Get([]byte("k")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Get before Init: expected ErrNotInitialized, got: %v", err)
	}
	if err := s.Delete([]byte("k")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Delete before Init: expected ErrNotInitialized, got: %v", err)
	}
	if err := s.Maintain(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Maintain before Init: expected ErrNotInitialized, got: %v", err)
	}
}

func TestGeometryMismatchRejected(t *testing.T) {
	cfg := testConfig()
	dev, err := flash.NewMemDevice(cfg.SectorSize, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}

	bad := *cfg
	bad.SectorCount = 8
	if _, err := New(partition, &bad); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for geometry mismatch, got: %v", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if _, err := s.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got: %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("Size after delete = %d, expected 0", s.Size())
	}
	if err := s.Delete([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Second delete: expected ErrKeyNotFound, got: %v", err)
	}
	if err := s.Delete([]byte("never-existed")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Delete of unknown key: expected ErrKeyNotFound, got: %v", err)
	}
}

func TestPutAfterDeleteRevivesKey(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("k"), []byte("one")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := s.Put([]byte("k"), []byte("two")); err != nil {
		t.Fatalf("Failed to put after delete: %v", err)
	}

	got, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(got, []byte("two")) {
		t.Errorf("Got %q, expected %q", got, "two")
	}
	if s.Size() != 1 {
		t.Errorf("Size = %d, expected 1", s.Size())
	}
}

func TestKeyDirectoryCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxKeys = 4
	s, _ := newTestStore(t, cfg)

	for i := 0; i < 4; i++ {
		if err := s.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v")); err != nil {
			t.Fatalf("Failed to put key %d: %v", i, err)
		}
	}
	if err := s.Put([]byte("one-too-many"), []byte("v")); !errors.Is(err, ErrKeyDirectoryFull) {
		t.Errorf("Expected ErrKeyDirectoryFull, got: %v", err)
	}

	// Overwriting an existing key needs no new slot.
	if err := s.Put([]byte("key-0"), []byte("updated")); err != nil {
		t.Errorf("Overwrite at capacity failed: %v", err)
	}
}

func TestOverwriteChurn(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	if err := s.Put([]byte("base_key"), []byte("base_value")); err != nil {
		t.Fatalf("Failed to put base key: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := s.Put([]byte("other_key"), []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Failed on overwrite %d: %v", i, err)
		}
	}

	got, err := s.Get([]byte("other_key"))
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !bytes.Equal(got, []byte("99")) {
		t.Errorf("Got %q, expected %q", got, "99")
	}
	if s.Size() != 2 {
		t.Errorf("Size = %d, expected 2", s.Size())
	}

	// Nothing changes after a reboot.
	s2 := reopen(t, dev, cfg)
	got, err = s2.Get([]byte("other_key"))
	if err != nil {
		t.Fatalf("Failed to get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte("99")) {
		t.Errorf("Got %q after reopen, expected %q", got, "99")
	}
	if s2.Size() != 2 {
		t.Errorf("Size after reopen = %d, expected 2", s2.Size())
	}
}

func TestPutDeleteChurn(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	// Max-length keys force the garbage collector to cycle through every
	// sector several times.
	key := bytes.Repeat([]byte("?"), entry.MaxKeyLength)
	for i := 0; i < 100; i++ {
		if err := s.Put(key, []byte("v")); err != nil {
			t.Fatalf("Failed on put %d: %v", i, err)
		}
		if err := s.Delete(key); err != nil {
			t.Fatalf("Failed on delete %d: %v", i, err)
		}
	}

	if s.Size() != 0 {
		t.Errorf("Size = %d, expected 0", s.Size())
	}
	if _, err := s.Get(key); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got: %v", err)
	}

	// The deletion must hold across a reboot even though stale copies of
	// the key littered the log.
	s2 := reopen(t, dev, cfg)
	if s2.Size() != 0 {
		t.Errorf("Size after reopen = %d, expected 0", s2.Size())
	}
	if _, err := s2.Get(key); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after reopen, got: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	for i := 0; i < 10; i++ {
		if err := s.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Failed to put key %d: %v", i, err)
		}
	}
	if err := s.Delete([]byte("key-3")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	s2 := reopen(t, dev, cfg)
	if s2.Size() != 9 {
		t.Errorf("Size after reopen = %d, expected 9", s2.Size())
	}
	for i := 0; i < 10; i++ {
		got, err := s2.Get([]byte(fmt.Sprintf("key-%d", i)))
		if i == 3 {
			if !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Deleted key %d resurrected: %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Failed to get key %d: %v", i, err)
		}
		if !bytes.Equal(got, []byte(fmt.Sprintf("value-%d", i))) {
			t.Errorf("Key %d: got %q", i, got)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Init(); err != nil {
			t.Fatalf("Re-scan %d failed: %v", i, err)
		}
	}
	got, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Failed to get after re-scans: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Got %q, expected %q", got, "v")
	}
}

func TestCorruptedEntryDetected(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	if err := s.Put([]byte("fragile"), []byte("payload")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	desc, ok := s.keys.Lookup([]byte("fragile"))
	if !ok {
		t.Fatal("Descriptor missing after put")
	}
	addr := s.partition.SectorAddress(uint32(desc.Location.Sector)) + desc.Location.Offset
	dev.Corrupt(addr+entry.HeaderSize, 2)

	if _, err := s.Get([]byte("fragile")); !errors.Is(err, ErrCorruptedEntry) {
		t.Errorf("Expected ErrCorruptedEntry, got: %v", err)
	}

	// A re-scan discards the damaged entry instead of serving it.
	if err := s.Init(); err != nil {
		t.Fatalf("Re-scan failed: %v", err)
	}
	if _, err := s.Get([]byte("fragile")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after re-scan, got: %v", err)
	}
}

func TestTornWriteRecovery(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	// Simulate a write torn by power loss: junk where the next entry would
	// have started.
	meta := s.sectors.Meta(s.active)
	addr := s.partition.SectorAddress(uint32(s.active)) + meta.Used
	junk := make([]byte, cfg.Alignment)
	if _, err := dev.Write(addr, junk); err != nil {
		t.Fatalf("Failed to write junk: %v", err)
	}

	s2 := reopen(t, dev, cfg)
	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}} {
		got, err := s2.Get([]byte(kv.k))
		if err != nil {
			t.Fatalf("Failed to get %q after recovery: %v", kv.k, err)
		}
		if !bytes.Equal(got, []byte(kv.v)) {
			t.Errorf("Key %q: got %q, expected %q", kv.k, got, kv.v)
		}
	}

	// Writes keep working after recovery.
	if err := s2.Put([]byte("c"), []byte("3")); err != nil {
		t.Errorf("Put after recovery failed: %v", err)
	}
}

func TestMaintainNothingToReclaim(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Maintain(); !errors.Is(err, ErrNothingToReclaim) {
		t.Errorf("Expected ErrNothingToReclaim, got: %v", err)
	}
}

func TestMaintainReclaimsStaleSectors(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestStore(t, cfg)

	// Overwrite one fat key until its stale copies span multiple sectors.
	fat := bytes.Repeat([]byte("x"), 1000)
	for i := 0; i < 6; i++ {
		if err := s.Put([]byte("churn"), fat); err != nil {
			t.Fatalf("Failed on overwrite %d: %v", i, err)
		}
	}
	if err := s.Put([]byte("churn"), []byte("final")); err != nil {
		t.Fatalf("Failed on final overwrite: %v", err)
	}
	if err := s.Put([]byte("bystander"), []byte("intact")); err != nil {
		t.Fatalf("Failed to put bystander: %v", err)
	}

	passes := 0
	for {
		err := s.Maintain()
		if errors.Is(err, ErrNothingToReclaim) {
			break
		}
		if err != nil {
			t.Fatalf("Maintain failed: %v", err)
		}
		if passes++; passes > int(cfg.SectorCount) {
			t.Fatal("Maintain never ran out of reclaimable sectors")
		}
	}
	if passes == 0 {
		t.Fatal("Expected at least one collection pass")
	}

	// Live data survives however many relocations it took.
	for _, kv := range []struct{ k, v string }{{"churn", "final"}, {"bystander", "intact"}} {
		got, err := s.Get([]byte(kv.k))
		if err != nil {
			t.Fatalf("Failed to get %q after collection: %v", kv.k, err)
		}
		if !bytes.Equal(got, []byte(kv.v)) {
			t.Errorf("Key %q: got %q, expected %q", kv.k, got, kv.v)
		}
	}
}

func TestCollectionAbortKeepsStaleAccounting(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	// Sector 0 ends up holding a small live entry, a big live entry and
	// 912 dead bytes, making it the collection victim. Sectors 1 and 2 are
	// left with too little room for the big entry, so its relocation must
	// target sector 3.
	small := bytes.Repeat([]byte("s"), 100)
	big := bytes.Repeat([]byte("b"), 3000)
	if err := s.Put([]byte("aa"), small); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("bb"), big); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("cc"), bytes.Repeat([]byte("c"), 850)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Delete([]byte("cc")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := s.Put([]byte("dd"), bytes.Repeat([]byte("d"), 3900)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("ee"), bytes.Repeat([]byte("e"), 3900)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("ff"), bytes.Repeat([]byte("f"), 100)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	reclaimBefore := s.sectors.Meta(0).Reclaimable

	// Non-erased bytes where the big entry's relocation lands abort the
	// pass after the small entry has already been moved out of the victim.
	if _, err := dev.Write(3*cfg.SectorSize+16, make([]byte, cfg.Alignment)); err != nil {
		t.Fatalf("Failed to plant junk: %v", err)
	}
	if err := s.Maintain(); !errors.Is(err, flash.ErrNotErased) {
		t.Fatalf("Expected aborted pass with ErrNotErased, got: %v", err)
	}

	// The relocated entry's old copy is still in the victim; the abort
	// must account for it.
	got, err := s.Get([]byte("aa"))
	if err != nil || !bytes.Equal(got, small) {
		t.Fatalf("Relocated key unreadable after abort: %q, %v", got, err)
	}
	desc, ok := s.keys.Lookup([]byte("aa"))
	if !ok {
		t.Fatal("Descriptor missing after abort")
	}
	if desc.Stale != 1 {
		t.Errorf("Stale after abort = %d, expected 1", desc.Stale)
	}
	if rec := s.sectors.Meta(0).Reclaimable; rec != reclaimBefore+128 {
		t.Errorf("Victim reclaimable = %d, expected %d", rec, reclaimBefore+128)
	}

	// A repeated aborted pass must not decay the counters it never
	// committed.
	if err := s.Maintain(); !errors.Is(err, flash.ErrNotErased) {
		t.Fatalf("Expected second aborted pass with ErrNotErased, got: %v", err)
	}
	if desc.Stale != 1 {
		t.Errorf("Stale after second abort = %d, expected 1", desc.Stale)
	}

	// A delete now counts both surviving copies, so the tombstone outlives
	// any pass that erases just one of them.
	if err := s.Delete([]byte("aa")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	shadow, ok := s.keys.Lookup([]byte("aa"))
	if !ok || !shadow.Deleted {
		t.Fatal("Tombstone shadow missing after delete")
	}
	if shadow.Stale != 2 {
		t.Errorf("Shadow stale count = %d, expected 2", shadow.Stale)
	}

	if err := s.Init(); err != nil {
		t.Fatalf("Re-scan failed: %v", err)
	}
	if _, err := s.Get([]byte("aa")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Deleted key resurfaced after re-scan: %v", err)
	}
	if got, err := s.Get([]byte("bb")); err != nil || !bytes.Equal(got, big) {
		t.Errorf("Big entry lost: %q, %v", got, err)
	}
	if s.Size() != 4 {
		t.Errorf("Size = %d, expected 4", s.Size())
	}
}

func TestInitWithTooSmallDirectory(t *testing.T) {
	cfg := testConfig()
	s, dev := newTestStore(t, cfg)

	for i := 0; i < 5; i++ {
		if err := s.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v")); err != nil {
			t.Fatalf("Failed to put key %d: %v", i, err)
		}
	}

	small := *cfg
	small.MaxKeys = 2
	partition, err := flash.NewPartition(dev, 0, cfg.SectorCount, cfg.Alignment)
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}
	s2, err := New(partition, &small)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s2.Init(); !errors.Is(err, ErrKeyDirectoryFull) {
		t.Errorf("Expected ErrKeyDirectoryFull, got: %v", err)
	}
}

func TestKeysListsLiveSet(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	keys := s.Keys()
	if len(keys) != 1 || !bytes.Equal(keys[0], []byte("b")) {
		t.Errorf("Keys = %q, expected [b]", keys)
	}
}

func TestGetStatsCountsOperations(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if _, err := s.Get([]byte("k")); err != nil {
		t.Fatalf("Failed to get: %v", err)
	}

	m := s.GetStats()
	if len(m) == 0 {
		t.Fatal("GetStats returned an empty map")
	}
	if got, ok := m["put_ops"]; !ok || got.(uint64) != 1 {
		t.Errorf("put_ops = %v, expected 1", got)
	}
	if got, ok := m["get_ops"]; !ok || got.(uint64) != 1 {
		t.Errorf("get_ops = %v, expected 1", got)
	}
}
