package playback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore(t *testing.T) {
	s := NewBlobStore()

	a := s.Create([]byte{1, 2, 3})
	b := s.Create([]byte{4})
	assert.True(t, strings.HasPrefix(a.ID, "blob:"))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Live())

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)

	s.Revoke(a.ID)
	s.Revoke(a.ID)
	s.Revoke("blob:unknown")
	assert.Equal(t, 1, s.Live())

	_, ok = s.Get(a.ID)
	assert.False(t, ok)
}
