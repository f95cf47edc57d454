// Package memstore is an in-memory objectstore.Client used by engine unit
// tests. It implements the same version-conditional semantics a real
// object store provides so the grace engine's retry logic can be exercised
// deterministically and concurrently without a network dependency.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

type object struct {
	data    []byte
	version uint64
}

// Store is a thread-safe, single-process object store keyed by object name.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object

	// conflictCountdown, when non-zero, forces the next N writes to a
	// given object to fail with ErrPreconditionFailed even though the
	// version would otherwise match, simulating a concurrent writer that
	// wins the race. Used to test the engine's retry loop.
	conflictCountdown map[string]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		objects:           make(map[string]*object),
		conflictCountdown: make(map[string]int),
	}
}

// InjectConflicts makes the next n writes to object fail with
// ErrPreconditionFailed regardless of the supplied version, simulating a
// concurrent writer winning the race n times in a row.
func (s *Store) InjectConflicts(object string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictCountdown[object] = n
}

func (s *Store) ReadRange(_ context.Context, name string, offset, length int64) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[name]
	if !ok {
		return nil, "", objectstore.ErrObjectNotFound
	}

	end := offset + length
	if end > int64(len(obj.data)) {
		end = int64(len(obj.data))
	}
	if offset > int64(len(obj.data)) {
		offset = int64(len(obj.data))
	}

	out := make([]byte, end-offset)
	copy(out, obj.data[offset:end])
	return out, versionString(obj.version), nil
}

func (s *Store) ReadFull(_ context.Context, name string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[name]
	if !ok {
		return nil, "", objectstore.ErrObjectNotFound
	}

	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, versionString(obj.version), nil
}

func (s *Store) Write(_ context.Context, name string, data []byte, pre objectstore.Precondition) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[name]

	switch pre.Mode {
	case objectstore.PreconditionMustNotExist:
		if exists {
			return "", objectstore.ErrPreconditionFailed
		}
	case objectstore.PreconditionMustExist:
		if !exists {
			return "", objectstore.ErrObjectNotFound
		}
		if pre.Version != versionString(obj.version) {
			return "", objectstore.ErrPreconditionFailed
		}
	}

	if n := s.conflictCountdown[name]; n > 0 {
		s.conflictCountdown[name] = n - 1
		return "", objectstore.ErrPreconditionFailed
	}

	next := uint64(1)
	if exists {
		next = obj.version + 1
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[name] = &object{data: stored, version: next}

	return versionString(next), nil
}

func (s *Store) Remove(_ context.Context, name string, pre objectstore.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[name]
	if !exists {
		return objectstore.ErrObjectNotFound
	}
	if pre.Mode == objectstore.PreconditionMustExist && pre.Version != versionString(obj.version) {
		return objectstore.ErrPreconditionFailed
	}

	delete(s.objects, name)
	return nil
}

func versionString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
