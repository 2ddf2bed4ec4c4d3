package fileintake

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// dedupResolution is the outcome of resolving a new upload against the
// duplicate index.
type dedupResolution struct {
	Sequence         int
	OriginalRecordID *uuid.UUID
	DisplayName      string
}

// resolveDuplicate looks up the highest sequence in use for (owner, digest)
// and assigns the next one. Sequence N>0 gets a disambiguated display name
// that does not collide with any name already used by the owner.
//
// The next sequence is max(existing)+1 rather than a count: purging an
// earlier copy frees its slot without shifting the survivors, so a count
// would collide with a surviving higher sequence.
//
// Callers must hold the per-(owner, digest) lock: the lookup-then-insert
// pair is only atomic together with the repository's unique constraint and
// the orchestrator's retry loop.
func resolveDuplicate(ctx context.Context, repo Repository, ownerID uuid.UUID, digest, baseName string) (*dedupResolution, error) {
	maxSeq, found, err := repo.MaxSequenceByOwnerAndDigest(ctx, ownerID, digest)
	if err != nil {
		return nil, fmt.Errorf("lookup duplicate sequence: %w", err)
	}

	res := &dedupResolution{Sequence: 0, DisplayName: baseName}
	if !found {
		return res, nil
	}
	res.Sequence = maxSeq + 1

	original, err := repo.GetOriginalByOwnerAndDigest(ctx, ownerID, digest)
	switch {
	case err == nil:
		originalID := original.ID
		res.OriginalRecordID = &originalID
	case errors.Is(err, ErrFileNotFound):
		// Every earlier copy was purged between the two lookups; the new
		// record stands alone.
	default:
		return nil, fmt.Errorf("lookup original record: %w", err)
	}

	name := disambiguateName(baseName, res.Sequence)
	// The sequence-derived suffix can still collide with a name the owner
	// picked manually (rename) or with a different digest's duplicate. Walk
	// the counter forward until the name is free.
	for n := res.Sequence; ; n++ {
		taken, err := repo.DisplayNameTaken(ctx, ownerID, name)
		if err != nil {
			return nil, fmt.Errorf("check display name: %w", err)
		}
		if !taken {
			break
		}
		name = disambiguateName(baseName, n+1)
	}
	res.DisplayName = name

	return res, nil
}

// disambiguateName produces "report (2).pdf" from ("report.pdf", 2).
func disambiguateName(base string, n int) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// keyedMutex serializes work per string key. It is the in-process half of
// the duplicate-sequence guard; the repository's unique constraint covers
// concurrent writers in other processes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key, creating it on first use.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for key and frees it once no waiter remains.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
