package identity

import (
	"sync"

	"github.com/google/uuid"
)

// Cache is a mutex-guarded in-memory map from user ID to [Snapshot], with a
// secondary email-to-ID index. The index is mutated only inside the same
// critical section as the primary entry it shadows, so no reader ever
// observes a half-updated pair.
type Cache struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]Snapshot
	idByEmail map[string]uuid.UUID
}

func NewCache() *Cache {
	return &Cache{
		byID:      make(map[uuid.UUID]Snapshot),
		idByEmail: make(map[string]uuid.UUID),
	}
}

// Get returns a copy of the cached snapshot. ok is false on a miss; the
// caller is responsible for loading from the user store and calling Put.
func (c *Cache) Get(userID uuid.UUID) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.byID[userID]
	return snap, ok
}

// Put upserts a snapshot and refreshes the email index, removing any stale
// reverse mapping left by a previous email.
func (c *Cache) Put(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.byID[snap.UserID]; ok && prev.Email != snap.Email {
		if owner, ok := c.idByEmail[prev.Email]; ok && owner == snap.UserID {
			delete(c.idByEmail, prev.Email)
		}
	}

	c.byID[snap.UserID] = snap
	if snap.Email != "" {
		c.idByEmail[snap.Email] = snap.UserID
	}
}

// Remove evicts the snapshot and its email index entry.
func (c *Cache) Remove(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.byID[userID]
	if !ok {
		return
	}

	delete(c.byID, userID)
	if owner, ok := c.idByEmail[snap.Email]; ok && owner == userID {
		delete(c.idByEmail, snap.Email)
	}
}

// GetIDByEmail resolves a user ID through the secondary index.
func (c *Cache) GetIDByEmail(email string) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.idByEmail[email]
	return id, ok
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[uuid.UUID]Snapshot)
	c.idByEmail = make(map[string]uuid.UUID)
}

// Len reports the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.byID)
}
