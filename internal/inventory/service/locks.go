package service

import (
	"sort"
	"sync"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
)

// ItemLocker serializes ledger mutations per item. Balance updates are a
// read-modify-write, so every writer for an item must hold its lock for the
// whole check-and-update.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewItemLocker creates a new item locker
func NewItemLocker() *ItemLocker {
	return &ItemLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *ItemLocker) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Lock acquires the lock for a single item and returns its unlock func.
func (l *ItemLocker) Lock(ref domain.ItemRef) func() {
	m := l.lockFor(ref.Key())
	m.Lock()
	return m.Unlock
}

// LockAll acquires locks for a set of items in sorted key order, so two
// callers sharing overlapping item sets cannot deadlock. Duplicate refs are
// locked once.
func (l *ItemLocker) LockAll(refs []domain.ItemRef) func() {
	keys := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		key := ref.Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		m := l.lockFor(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// KeyedLocker serializes operations on arbitrary string keys. Used for
// per-batch and per-audit state transitions.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLocker creates a new keyed locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for a key and returns its unlock func.
func (l *KeyedLocker) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
