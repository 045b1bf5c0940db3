package source

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	nf := NotFound("wallet not found")
	assert.Same(t, nf, AsError(fmt.Errorf("fetch wallet: %w", nf)))
	assert.True(t, AsError(nf).IsNotFound())

	plain := AsError(errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
	assert.False(t, plain.IsNotFound())

	var nilErr *Error
	assert.False(t, nilErr.IsNotFound())
}

func TestStaticLifecycle(t *testing.T) {
	s := NewStatic[int]()

	snap := s.Current()
	assert.True(t, snap.IsLoading)
	assert.False(t, snap.HasData())

	var seen []Snapshot[int]
	unsubscribe := s.Subscribe(func(snap Snapshot[int]) { seen = append(seen, snap) })

	s.SetData(7)
	require.Len(t, seen, 1)
	assert.Equal(t, 7, *seen[0].Data)
	assert.False(t, seen[0].IsLoading)

	s.SetError(errors.New("timeout"))
	snap = s.Current()
	assert.True(t, snap.IsError)
	assert.Equal(t, 7, *snap.Data, "last known value is kept")

	s.SetLoading()
	assert.True(t, s.Current().IsLoading)

	unsubscribe()
	unsubscribe()
	s.SetData(8)
	assert.Len(t, seen, 3)
}
