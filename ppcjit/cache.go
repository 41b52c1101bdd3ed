package ppcjit

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

// commitEvery is how many inserts accumulate before Cache fsyncs its
// underlying database, trading a bounded amount of data loss on an
// unclean shutdown for far fewer fsyncs during normal operation.
const commitEvery = 256

var artifactsBucket = []byte("artifacts")

// Fingerprint is the 128-bit cache key: two independently seeded 64-bit
// xxhash digests standing in for a single 128-bit hash, since the
// original 128-bit hasher this design is modeled on has no equivalent
// in the library set this module draws from (see DESIGN.md).
type Fingerprint [16]byte

// NewFingerprint hashes isaName/isaFlags/settings identity and the raw
// sequence bytes into a Fingerprint. Hashing order matches the
// isa-identity-then-settings-then-sequence convention this design
// carries forward so two processes that compiled the same guest code
// under the same ISA/settings always agree on the key.
func NewFingerprint(isaName, isaFlags, settings string, seq Sequence) Fingerprint {
	buf := make([]byte, 0, len(seq)*4)
	for _, ins := range seq {
		buf = append(buf, byte(ins.Code), byte(ins.Code>>8), byte(ins.Code>>16), byte(ins.Code>>24))
	}

	var fp Fingerprint
	h1 := xxhash.NewWithSeed(0)
	h1.WriteString(isaName)
	h1.WriteString(isaFlags)
	h1.WriteString(settings)
	h1.Write(buf)
	low := h1.Sum64()

	h2 := xxhash.NewWithSeed(1)
	h2.WriteString(isaName)
	h2.WriteString(isaFlags)
	h2.WriteString(settings)
	h2.Write(buf)
	high := h2.Sum64()

	for i := 0; i < 8; i++ {
		fp[i] = byte(low >> (8 * i))
		fp[8+i] = byte(high >> (8 * i))
	}
	return fp
}

// Artifact is the durable record stored per fingerprint: the decoded
// instruction sequence and its detected pattern, enough to skip the
// bus-reading half of compilation on a cache hit (the Builder still
// replays Emit over the cached words, since GuestEffect closures are
// per-process function values an Emitter hands out and cannot
// themselves be serialized).
type Artifact struct {
	Seq        Sequence
	Pattern    Pattern
	TouchedEnd uint32
}

// Cache is the fingerprint-keyed persistent block cache: an in-memory
// LRU in front of a bbolt-backed store, with zstd-compressed entries and
// batched durability.
type Cache struct {
	mu      sync.Mutex
	db      *bolt.DB
	hot     *lru.Cache[Fingerprint, Artifact]
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	pending int
}

// OpenCache opens (creating if necessary) a persistent block cache at
// path, with a hotCacheSize-entry in-memory LRU in front of it.
func OpenCache(path string, hotCacheSize int) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ppcjit: opening block cache: %w", err)
	}
	// Commits skip their own fsync; Insert and Close call Sync instead.
	db.NoSync = true
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(artifactsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ppcjit: initializing block cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ppcjit: building compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ppcjit: building decompressor: %w", err)
	}

	hot, err := lru.New[Fingerprint, Artifact](hotCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ppcjit: building hot cache: %w", err)
	}

	return &Cache{db: db, hot: hot, encoder: enc, decoder: dec}, nil
}

// Get returns the artifact stored for key, if any, checking the
// in-memory LRU before falling through to bbolt.
func (c *Cache) Get(key Fingerprint) (Artifact, bool) {
	if a, ok := c.hot.Get(key); ok {
		return a, true
	}

	var out Artifact
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(artifactsBucket).Get(key[:])
		if raw == nil {
			return nil
		}
		decompressed, err := c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return fmt.Errorf("ppcjit: decompressing artifact: %w", err)
		}
		if err := gob.NewDecoder(bytes.NewReader(decompressed)).Decode(&out); err != nil {
			return fmt.Errorf("ppcjit: decoding artifact: %w", err)
		}
		found = true
		return nil
	})
	if found {
		c.hot.Add(key, out)
	}
	return out, found
}

// Insert stores artifact under key, compressing it and committing it to
// bbolt in its own transaction; the database is fsynced every
// commitEvery inserts, and Close performs the final sync.
func (c *Cache) Insert(key Fingerprint, artifact Artifact) error {
	c.hot.Add(key, artifact)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(artifact); err != nil {
		return fmt.Errorf("ppcjit: encoding artifact: %w", err)
	}
	compressed := c.encoder.EncodeAll(buf.Bytes(), nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).Put(key[:], compressed)
	}); err != nil {
		return fmt.Errorf("ppcjit: inserting artifact: %w", err)
	}

	c.pending++
	if c.pending >= commitEvery {
		c.pending = 0
		// With NoSync set in OpenCache, commits since the last Sync are
		// not yet on disk; this is where they become durable.
		if err := c.db.Sync(); err != nil {
			return fmt.Errorf("ppcjit: flushing block cache: %w", err)
		}
	}
	return nil
}

// Close performs a final sync and releases the underlying database.
func (c *Cache) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	if err := c.db.Sync(); err != nil {
		c.db.Close()
		return fmt.Errorf("ppcjit: final sync: %w", err)
	}
	return c.db.Close()
}
