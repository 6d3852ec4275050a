// Package syncmap provides a fixed-bucket concurrent hash map layered on
// fine-grained locked lists.
package syncmap

import (
	"hash/maphash"

	"github.com/joeycumines/go-syncutil/synclist"
)

// DefaultBucketCount is the bucket array length used when not overridden.
// The bucket array is never rebuilt during the lifetime of a map.
const DefaultBucketCount = 19

type (
	// Map is a concurrent hash map with a fixed bucket array. Values are
	// held by owning pointer internally and Get returns copies, so readers
	// never alias memory a concurrent update may replace.
	//
	// Construct with New.
	Map[K comparable, V any] struct {
		buckets []*synclist.List[entry[K, V]]
		hasher  func(K) uint64
	}

	entry[K comparable, V any] struct {
		key   K
		value *V
	}

	// Option configures New.
	Option[K comparable] interface {
		applyMap(*mapOptions[K])
	}

	mapOptions[K comparable] struct {
		bucketCount int
		hasher      func(K) uint64
	}

	mapOptionImpl[K comparable] struct {
		applyMapFunc func(*mapOptions[K])
	}
)

func (x *mapOptionImpl[K]) applyMap(opts *mapOptions[K]) { x.applyMapFunc(opts) }

// WithBucketCount overrides the fixed bucket array length. Values <= 0 are
// ignored. Defaults to DefaultBucketCount.
func WithBucketCount[K comparable](count int) Option[K] {
	return &mapOptionImpl[K]{func(opts *mapOptions[K]) {
		opts.bucketCount = count
	}}
}

// WithHasher overrides the bucket-selection hash. Defaults to
// maphash.Comparable with a per-map seed.
func WithHasher[K comparable](hasher func(K) uint64) Option[K] {
	return &mapOptionImpl[K]{func(opts *mapOptions[K]) {
		opts.hasher = hasher
	}}
}

// New creates a map. The bucket count and hasher are fixed at construction.
func New[K comparable, V any](options ...Option[K]) *Map[K, V] {
	cfg := mapOptions[K]{bucketCount: DefaultBucketCount}
	for _, o := range options {
		if o != nil {
			o.applyMap(&cfg)
		}
	}
	if cfg.bucketCount <= 0 {
		cfg.bucketCount = DefaultBucketCount
	}
	if cfg.hasher == nil {
		seed := maphash.MakeSeed()
		cfg.hasher = func(key K) uint64 {
			return maphash.Comparable(seed, key)
		}
	}
	x := &Map[K, V]{
		buckets: make([]*synclist.List[entry[K, V]], cfg.bucketCount),
		hasher:  cfg.hasher,
	}
	for i := range x.buckets {
		x.buckets[i] = synclist.New[entry[K, V]]()
	}
	return x
}

func (x *Map[K, V]) bucket(key K) *synclist.List[entry[K, V]] {
	return x.buckets[x.hasher(key)%uint64(len(x.buckets))]
}

// Get returns a copy of the value stored under key.
func (x *Map[K, V]) Get(key K) (value V, ok bool) {
	e, ok := x.bucket(key).FindFirstIf(func(e entry[K, V]) bool {
		return e.key == key
	})
	if !ok {
		return value, false
	}
	return *e.value, true
}

// InsertOrUpdate stores value under key, reporting whether the key was newly
// inserted (as opposed to updated).
func (x *Map[K, V]) InsertOrUpdate(key K, value V) (inserted bool) {
	return x.bucket(key).InsertOrUpdate(func(e entry[K, V]) bool {
		return e.key == key
	}, entry[K, V]{key: key, value: &value})
}

// Erase removes key, reporting whether it was present.
func (x *Map[K, V]) Erase(key K) bool {
	return x.bucket(key).RemoveFirstIf(func(e entry[K, V]) bool {
		return e.key == key
	})
}
