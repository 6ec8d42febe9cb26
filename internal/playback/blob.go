package playback

import (
	"sync"

	"github.com/google/uuid"

	"github.com/maauso/guided-audio/internal/metrics"
)

// Blob is a playable object backed by an in-memory byte buffer. Blobs are a
// limited host resource and must be released with BlobStore.Revoke.
type Blob struct {
	ID   string
	Data []byte
}

// BlobStore registers live blobs so their release is explicit and auditable.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string]*Blob
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]*Blob)}
}

// Create registers data as a new blob with a "blob:" id.
func (s *BlobStore) Create(data []byte) *Blob {
	b := &Blob{ID: "blob:" + uuid.NewString(), Data: data}

	s.mu.Lock()
	s.blobs[b.ID] = b
	s.mu.Unlock()

	metrics.BlobsLive.Inc()
	return b
}

// Get returns a live blob by id.
func (s *BlobStore) Get(id string) (*Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	return b, ok
}

// Revoke releases a blob. Revoking an unknown or already revoked id is a no-op.
func (s *BlobStore) Revoke(id string) {
	s.mu.Lock()
	_, ok := s.blobs[id]
	delete(s.blobs, id)
	s.mu.Unlock()

	if ok {
		metrics.BlobsLive.Dec()
	}
}

// Live returns the number of registered blobs.
func (s *BlobStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
