package pipeline

import "sync"

// docLocks enforces at most one active pipeline run per document.
// Locks are advisory and in-process; the scheduler is the only writer
// of record versions so this is sufficient to serialize runs. Each
// lock records the job that owns it, so a stale release (a cancelled
// task draining from the queue) cannot free a newer job's claim.
type docLocks struct {
	mu     sync.Mutex
	owners map[string]string // document ID -> owning job ID
}

func newDocLocks() *docLocks {
	return &docLocks{owners: make(map[string]string)}
}

// TryAcquire claims the document for a job. Returns false if another
// run already holds it.
func (l *docLocks) TryAcquire(documentID, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[documentID]; held {
		return false
	}
	l.owners[documentID] = jobID
	return true
}

// Release frees the document only if the given job still owns it.
func (l *docLocks) Release(documentID, jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[documentID] == jobID {
		delete(l.owners, documentID)
	}
}

// Held reports whether the document currently has an active run.
func (l *docLocks) Held(documentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.owners[documentID]
	return held
}
