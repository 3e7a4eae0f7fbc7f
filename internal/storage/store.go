package storage

import (
	"errors"
	"sort"
	"sync"
)

// ErrGroupNotFound is returned when a group doesn't exist in the store
var ErrGroupNotFound = errors.New("group not found")

// ErrGroupExists is returned when creating a group that is already stored
var ErrGroupExists = errors.New("group already exists")

// Store defines the interface for a node's group storage
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get retrieves the record stored for a group id
	// Returns ErrGroupNotFound if the group doesn't exist
	Get(groupID string) ([]byte, error)

	// Exists reports whether the group is stored
	Exists(groupID string) bool

	// Create stores a new group record
	// Returns ErrGroupExists if the id is already present; the stored record is not replaced
	Create(groupID string, record []byte) error

	// Delete removes a group
	// Returns ErrGroupNotFound if the group doesn't exist
	Delete(groupID string) error

	// List returns all group ids in sorted order
	List() []string

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Groups int // Number of groups
	Bytes  int // Total size of all records in bytes
}

// MemoryStore implements Store interface with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu     sync.RWMutex      // Protects concurrent access
	groups map[string][]byte // Group id to raw record
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[string][]byte),
	}
}

// Get retrieves a group record by id
// Returns a copy of the record to prevent external modification
func (m *MemoryStore) Get(groupID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.groups[groupID]
	if !exists {
		return nil, ErrGroupNotFound
	}

	result := make([]byte, len(record))
	copy(result, record)
	return result, nil
}

// Exists reports whether the group is stored
func (m *MemoryStore) Exists(groupID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.groups[groupID]
	return exists
}

// Create stores a new group record
// Makes a copy of the record to prevent external modification
func (m *MemoryStore) Create(groupID string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[groupID]; exists {
		return ErrGroupExists
	}

	stored := make([]byte, len(record))
	copy(stored, record)
	m.groups[groupID] = stored

	return nil
}

// Delete removes a group
// Deleting an absent group is an error, not a no-op
func (m *MemoryStore) Delete(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[groupID]; !exists {
		return ErrGroupNotFound
	}
	delete(m.groups, groupID)
	return nil
}

// List returns all group ids in sorted order
func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, record := range m.groups {
		totalBytes += len(record)
	}

	return StoreStats{
		Groups: len(m.groups),
		Bytes:  totalBytes,
	}
}
