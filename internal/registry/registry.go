// Package registry is an embedded, persistent identity -> address
// directory, backed by github.com/dgraph-io/badger/v4 the way
// tenzoki/agen/omni's storage package wraps badger for its own KV store.
// It is not a message queue: it persists only the slow-changing
// identity -> address map a long-running node needs to reconnect its buses
// after a restart.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tenzoki/esbus/public/addr"
)

// Peer is one entry in the directory: an identity, the address it was last
// seen at, and when.
type Peer struct {
	Identity []byte       `json:"identity"`
	Address  addr.Address `json:"address"`
	LastSeen time.Time    `json:"last_seen"`
}

// peerRecord is Peer's on-disk shape: addr.Address has no exported fields
// for encoding/json to walk, so records store its uniform encoding
// instead.
type peerRecord struct {
	Identity []byte    `json:"identity"`
	Uniform  []byte    `json:"uniform"`
	LastSeen time.Time `json:"last_seen"`
}

// Registry is the badger-backed peer directory, matching the
// omni/internal/kv.KVStore interface shape (Get/Set/Delete/List) narrowed
// to this package's Peer-shaped records.
type Registry struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open opens or creates a registry database rooted at dir.
func Open(dir string) (*Registry, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", dir, err)
	}
	return &Registry{db: db}, nil
}

// Close releases the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Set records or updates peer's address, storing peer.LastSeen as given.
func (r *Registry) Set(peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uniform := peer.Address.Encode()
	rec := peerRecord{
		Identity: peer.Identity,
		Uniform:  uniform[:],
		LastSeen: peer.LastSeen,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: encode peer %s: %w", peer.Identity, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(peer.Identity), data)
	})
}

// Get looks up a peer by identity. ok is false if no such identity has
// been recorded.
func (r *Registry) Get(identity []byte) (peer Peer, ok bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var data []byte
	err = r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(identity))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return Peer{}, false, fmt.Errorf("registry: get %s: %w", identity, err)
	}
	if data == nil {
		return Peer{}, false, nil
	}
	p, err := decodePeer(data)
	if err != nil {
		return Peer{}, false, err
	}
	return p, true, nil
}

// Delete removes a peer's record. It is not an error to delete an identity
// that was never recorded.
func (r *Registry) Delete(identity []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(identity))
	})
}

// List returns every recorded peer.
func (r *Registry) List() ([]Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var peers []Peer
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("peer:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			p, err := decodePeer(data)
			if err != nil {
				return err
			}
			peers = append(peers, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return peers, nil
}

func decodePeer(data []byte) (Peer, error) {
	var rec peerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Peer{}, fmt.Errorf("registry: decode peer: %w", err)
	}
	a, err := addr.Decode(rec.Uniform)
	if err != nil {
		return Peer{}, fmt.Errorf("registry: decode peer address: %w", err)
	}
	return Peer{Identity: rec.Identity, Address: a, LastSeen: rec.LastSeen}, nil
}

func key(identity []byte) []byte {
	return append([]byte("peer:"), identity...)
}
