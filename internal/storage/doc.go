// Package storage provides the group store each node keeps in memory.
//
// # Overview
//
// A node owns a private mapping from group id to the raw JSON record that
// was posted when the group was created. There is no replication and no
// persistence: restarting a node empties it. Cluster-wide consistency is
// entirely the coordinator's concern.
//
// # Semantics
//
// The store is deliberately strict so the coordinator can tell what
// happened on a host:
//   - Create on an existing id returns ErrGroupExists and keeps the old record
//   - Delete on an absent id returns ErrGroupNotFound
//   - Get on an absent id returns ErrGroupNotFound
//
// # Concurrency
//
// MemoryStore guards its map with a sync.RWMutex. Reads (Get, Exists, List,
// Stats) take the read lock; Create and Delete take the write lock, so the
// check-then-insert in Create is atomic with respect to other writers.
//
// Records are copied on the way in and on the way out; callers may reuse
// their buffers.
//
// # Usage Example
//
//	store := storage.NewMemoryStore()
//	if err := store.Create("group-1", []byte(`{"groupId":"group-1"}`)); err != nil {
//	    // storage.ErrGroupExists
//	}
//	record, err := store.Get("group-1")
package storage
