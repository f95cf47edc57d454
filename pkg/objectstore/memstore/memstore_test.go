package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

func TestWriteMustNotExist(t *testing.T) {
	ctx := context.Background()
	s := New()

	v1, err := s.Write(ctx, "obj", []byte("a"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)
	assert.NotEmpty(t, v1)

	_, err = s.Write(ctx, "obj", []byte("b"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	assert.ErrorIs(t, err, objectstore.ErrPreconditionFailed)
}

func TestWriteMustExistVersionMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Write(ctx, "obj", []byte("a"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)

	_, err = s.Write(ctx, "obj", []byte("b"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: "bogus"})
	assert.ErrorIs(t, err, objectstore.ErrPreconditionFailed)
}

func TestWriteMustExistMissingObject(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Write(ctx, "missing", []byte("a"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: "1"})
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	version, err := s.Write(ctx, "obj", []byte("hello"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)

	data, v2, err := s.ReadFull(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, version, v2)

	_, err = s.Write(ctx, "obj", []byte("hello2"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: version})
	require.NoError(t, err)

	slice, _, err := s.ReadRange(ctx, "obj", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(slice))
}

func TestReadNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, _, err := s.ReadFull(ctx, "missing")
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	_, _, err = s.ReadRange(ctx, "missing", 0, 1)
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestInjectConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Write(ctx, "obj", []byte("a"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)

	s.InjectConflicts("obj", 2)

	_, version, err := s.ReadFull(ctx, "obj")
	require.NoError(t, err)

	_, err = s.Write(ctx, "obj", []byte("b"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: version})
	assert.ErrorIs(t, err, objectstore.ErrPreconditionFailed)

	_, err = s.Write(ctx, "obj", []byte("b"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: version})
	assert.ErrorIs(t, err, objectstore.ErrPreconditionFailed)

	_, err = s.Write(ctx, "obj", []byte("b"), objectstore.Precondition{Mode: objectstore.PreconditionMustExist, Version: version})
	require.NoError(t, err)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Write(ctx, "obj", []byte("a"), objectstore.Precondition{Mode: objectstore.PreconditionMustNotExist})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "obj", objectstore.Precondition{}))

	_, _, err = s.ReadFull(ctx, "obj")
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}
