// Package artifact holds finalized video recordings in memory and hands out
// referenceable URLs for them.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is an immutable, finalized recording
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	MediaType string    `json:"media_type"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	data []byte
}

// Reader returns a fresh reader over the artifact bytes
func (a *Artifact) Reader() io.ReadSeeker {
	return bytes.NewReader(a.data)
}

// Bytes returns a copy of the artifact bytes
func (a *Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Store registers artifacts under URLs. Creating a new artifact supersedes the
// current one, which is revoked so that repeated rounds do not accumulate blobs.
type Store struct {
	mu      sync.RWMutex
	baseURL string
	items   map[uuid.UUID]*Artifact
	current *Artifact
	now     func() time.Time
}

// NewStore creates a store whose URLs are rooted at baseURL (may be empty for relative URLs)
func NewStore(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		items:   make(map[uuid.UUID]*Artifact),
		now:     time.Now,
	}
}

// Create concatenates chunks in order into a new artifact and makes it current
func (s *Store) Create(chunks [][]byte, mediaType string) *Artifact {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}

	id := uuid.New()
	a := &Artifact{
		ID:        id,
		MediaType: mediaType,
		URL:       fmt.Sprintf("%s/api/artifacts/%s", s.baseURL, id),
		Size:      size,
		CreatedAt: s.now(),
		data:      data,
	}

	s.mu.Lock()
	previous := s.current
	if previous != nil {
		delete(s.items, previous.ID)
	}
	s.items[id] = a
	s.current = a
	s.mu.Unlock()

	if previous != nil {
		slog.Debug("Superseded artifact revoked", "artifact_id", previous.ID, "size", previous.Size)
	}
	slog.Info("Video artifact created", "artifact_id", id, "size", size, "chunks", len(chunks), "media_type", mediaType)

	return a
}

// Current returns the latest artifact, or nil when none exists
func (s *Store) Current() *Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Lookup returns a registered artifact by id
func (s *Store) Lookup(id uuid.UUID) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	return a, ok
}

// Revoke releases an artifact; revoking the current one leaves the store empty
func (s *Store) Revoke(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	return true
}

// Len reports how many artifacts are still referenceable
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
