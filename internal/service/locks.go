package service

import "sync"

// childLocks serializes operations per (note, sub-note). When reconciliation
// renames a child, the new id is bound to the same mutex and the old id is
// aliased to the new one, so a caller waiting on the temporary id ends up
// operating on the confirmed child.
type childLocks struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	aliases map[string]string
}

func newChildLocks() *childLocks {
	return &childLocks{
		locks:   make(map[string]*sync.Mutex),
		aliases: make(map[string]string),
	}
}

func lockKey(noteID, subNoteID string) string {
	return noteID + "\x00" + subNoteID
}

// Lock blocks until the child is free and returns its current id.
func (l *childLocks) Lock(noteID, subNoteID string) (id string, unlock func()) {
	l.mu.Lock()
	id = l.resolveLocked(noteID, subNoteID)
	m, ok := l.locks[lockKey(noteID, id)]
	if !ok {
		m = &sync.Mutex{}
		l.locks[lockKey(noteID, id)] = m
	}
	l.mu.Unlock()

	m.Lock()

	l.mu.Lock()
	id = l.resolveLocked(noteID, subNoteID)
	l.mu.Unlock()
	return id, m.Unlock
}

// Resolve follows renames to the child's current id.
func (l *childLocks) Resolve(noteID, subNoteID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveLocked(noteID, subNoteID)
}

// Alias must be called while holding the lock of oldID.
func (l *childLocks) Alias(noteID, oldID, newID string) {
	if oldID == newID {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.aliases[lockKey(noteID, oldID)] = newID
	if m, ok := l.locks[lockKey(noteID, oldID)]; ok {
		l.locks[lockKey(noteID, newID)] = m
	}
}

func (l *childLocks) resolveLocked(noteID, id string) string {
	for seen := 0; seen < 8; seen++ {
		next, ok := l.aliases[lockKey(noteID, id)]
		if !ok {
			break
		}
		id = next
	}
	return id
}
