/*
Copyright 2015 Workiva, LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package ctrie implements a Ctrie: a lock-free, concurrent hash trie
supporting fine-grained concurrent mutation and O(1) lock-free consistent
snapshots, without any global lock. It is the data structure described in
"Concurrent Tries with Efficient Non-Blocking Snapshots" (Prokopec, Bronson,
Bagwell, Odersky).

Every public mutator and reader is non-blocking and linearizable: instead
of locking, concurrent operations coordinate through compare-and-swap on
I-node main pointers (gcas, see gcas.go) and, for the rare root swap a
snapshot performs, through a restricted double-CAS on the root slot
(rdcss, see rdcss.go). The design is lock-free, not wait-free: a single
goroutine can be forced to retry its operation repeatedly under
contention, but the system as a whole always makes progress.
*/
package ctrie

import "github.com/wkvns/ctrie/internal/epoch"

// Ctrie is a concurrent, lock-free map from K to V with O(1) lock-free
// snapshots. The zero value is not usable; construct one with New or
// WithHasher.
type Ctrie[K, V any] struct {
	root        *iNode[K, V]
	readOnly    bool
	hashBuilder HashBuilder[K]
}

// New returns a new, empty Ctrie whose key type hashes itself via Hash.
func New[K Hashable, V any]() *Ctrie[K, V] {
	return WithHasher[K, V](HashBuilder[K]{
		Hash:  func(k K) uint64 { return k.Hash() },
		Equal: func(a, b K) bool { return a == b },
	})
}

// WithHasher returns a new, empty Ctrie using the given hash builder. A
// zero-value HashBuilder (or one with a nil Hash or Equal) falls back to
// the package's default hasher for string and []byte keys and panics for
// any other key type.
func WithHasher[K, V any](hb HashBuilder[K]) *Ctrie[K, V] {
	if hb.Hash == nil || hb.Equal == nil {
		def := defaultHashBuilder[K]()
		if hb.Hash == nil {
			hb.Hash = def.Hash
		}
		if hb.Equal == nil {
			hb.Equal = def.Equal
		}
	}
	gen := newGeneration()
	root := &iNode[K, V]{
		main: &mainNode[K, V]{cNode: &cNode[K, V]{gen: gen}},
		gen:  gen,
	}
	return &Ctrie[K, V]{root: root, hashBuilder: hb}
}

// Pin returns a guard that must be passed to Lookup, Insert, Remove,
// Snapshot, and ReadOnlySnapshot. Callers must release it (Guard.Unpin)
// when done; using a released guard panics. See package epoch and
// SPEC_FULL.md §11 for why this exists even though Go's garbage collector
// — not the guard — is what actually keeps unlinked nodes alive for as
// long as a concurrent reader can still reach them.
func (c *Ctrie[K, V]) Pin() *epoch.Guard {
	return epoch.Pin()
}

// Lookup returns the value associated with key and whether it was found.
func (c *Ctrie[K, V]) Lookup(key K, guard *epoch.Guard) (V, bool) {
	guard.AssertLive()
	e := &entry[K, V]{key: key, hash: c.hashBuilder.Hash(key)}
	return c.lookup(e)
}

// Insert sets the value for key, replacing any existing value.
func (c *Ctrie[K, V]) Insert(key K, value V, guard *epoch.Guard) {
	guard.AssertLive()
	c.assertReadWrite()
	e := &entry[K, V]{key: key, value: value, hash: c.hashBuilder.Hash(key)}
	c.insert(e)
}

// Remove deletes key, returning the removed value and whether it was
// present.
func (c *Ctrie[K, V]) Remove(key K, guard *epoch.Guard) (V, bool) {
	guard.AssertLive()
	c.assertReadWrite()
	e := &entry[K, V]{key: key, hash: c.hashBuilder.Hash(key)}
	return c.remove(e)
}

// Snapshot returns an independent, mutable point-in-time clone. Writes to
// the snapshot are invisible to c and vice versa (spec §8, P7). If c is
// itself read-only, the result is read-only too (c is returned as is).
func (c *Ctrie[K, V]) Snapshot(guard *epoch.Guard) *Ctrie[K, V] {
	guard.AssertLive()
	return c.clone(c.readOnly)
}

// ReadOnlySnapshot returns an independent clone on which every mutator
// panics. Unlike Snapshot it shares the source generation's subtrees
// without renewing them: traversal through it simply tolerates stale
// generations instead of rewriting them, since nothing will ever write
// through it to invalidate that sharing.
func (c *Ctrie[K, V]) ReadOnlySnapshot(guard *epoch.Guard) *Ctrie[K, V] {
	guard.AssertLive()
	return c.clone(true)
}

// clone is the RDCSS-driven implementation shared by Snapshot and
// ReadOnlySnapshot: it's a loop only because the RDCSS itself can lose a
// race against a concurrent GCAS or another clone and must retry.
func (c *Ctrie[K, V]) clone(readOnly bool) *Ctrie[K, V] {
	if readOnly && c.readOnly {
		return c
	}
	for {
		root := c.readRoot()
		main := gcasRead(root, c)
		gen := newGeneration()
		if !c.rdcssRoot(root, main, root.copyToGen(gen, c)) {
			continue
		}
		if readOnly {
			// A read-only clone never mutates, so it can keep the
			// old-generation root that c has just swapped out, without
			// copying it again.
			return &Ctrie[K, V]{root: root, hashBuilder: c.hashBuilder, readOnly: true}
		}
		return &Ctrie[K, V]{
			root:        c.readRoot().copyToGen(newGeneration(), c),
			hashBuilder: c.hashBuilder,
			readOnly:    false,
		}
	}
}

// Clear empties the trie in place. Existing snapshots are unaffected.
func (c *Ctrie[K, V]) Clear(guard *epoch.Guard) {
	guard.AssertLive()
	c.assertReadWrite()
	for {
		root := c.readRoot()
		gen := newGeneration()
		empty := &iNode[K, V]{main: &mainNode[K, V]{cNode: &cNode[K, V]{gen: gen}}, gen: gen}
		if c.rdcssRoot(root, gcasRead(root, c), empty) {
			return
		}
	}
}

// Len reports the number of entries currently in the trie. This is an
// O(n) full walk: the trie does not cache size, so there's nothing
// cheaper to report (spec places no O(1) requirement on Len; only on
// Snapshot, per P6).
func (c *Ctrie[K, V]) Len(guard *epoch.Guard) int {
	guard.AssertLive()
	n := 0
	for it := c.Iterator(guard); it.Next(); {
		n++
	}
	return n
}

func (c *Ctrie[K, V]) assertReadWrite() {
	if c.readOnly {
		panic("ctrie: cannot modify a read-only snapshot")
	}
}

// insert retries iinsert from the root until it linearizes.
func (c *Ctrie[K, V]) insert(e *entry[K, V]) {
	root := c.readRoot()
	if !c.iinsert(root, e, 0, nil, root.gen) {
		c.insert(e)
	}
}

// lookup retries ilookup from the root until it linearizes.
func (c *Ctrie[K, V]) lookup(e *entry[K, V]) (V, bool) {
	root := c.readRoot()
	val, exists, ok := c.ilookup(root, e, 0, nil, root.gen)
	if !ok {
		return c.lookup(e)
	}
	return val, exists
}

// remove retries iremove from the root until it linearizes.
func (c *Ctrie[K, V]) remove(e *entry[K, V]) (V, bool) {
	root := c.readRoot()
	val, exists, ok := c.iremove(root, e, 0, nil, root.gen)
	if !ok {
		return c.remove(e)
	}
	return val, exists
}

// iinsert descends from i, inserting e. It returns false when the caller
// must restart from the root (spec's internal Restart outcome).
func (c *Ctrie[K, V]) iinsert(i *iNode[K, V], e *entry[K, V], lev uint, parent *iNode[K, V], startGen *generation) bool {
	main := gcasRead(i, c) // linearization point for a successful read
	switch {
	case main.cNode != nil:
		cn := main.cNode
		flag, pos := flagPos(e.hash, lev, cn.bmp)
		if cn.bmp&flag == 0 {
			rn := cn
			if cn.gen != i.gen {
				rn = cn.renewed(i.gen, c)
			}
			ncn := &mainNode[K, V]{cNode: rn.inserted(pos, flag, &sNode[K, V]{entry: e}, i.gen)}
			return gcas(i, main, ncn, c)
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[K, V]:
			if startGen == br.gen {
				return c.iinsert(br, e, lev+w, i, startGen)
			}
			if gcas(i, main, &mainNode[K, V]{cNode: cn.renewed(startGen, c)}, c) {
				return c.iinsert(i, e, lev, parent, startGen)
			}
			return false
		case *sNode[K, V]:
			if !c.hashBuilder.Equal(br.entry.key, e.key) {
				rn := cn
				if cn.gen != i.gen {
					rn = cn.renewed(i.gen, c)
				}
				nsn := &sNode[K, V]{entry: e}
				sub := newMainNode(br, br.entry.hash, nsn, nsn.entry.hash, lev+w, i.gen)
				nin := &iNode[K, V]{main: sub, gen: i.gen}
				ncn := &mainNode[K, V]{cNode: rn.updated(pos, nin, i.gen)}
				return gcas(i, main, ncn, c)
			}
			ncn := &mainNode[K, V]{cNode: cn.updated(pos, &sNode[K, V]{entry: e}, i.gen)}
			return gcas(i, main, ncn, c)
		default:
			panic("ctrie: invalid branch kind")
		}
	case main.tNode != nil:
		clean(parent, lev-w, c)
		return false
	case main.lNode != nil:
		nln := &mainNode[K, V]{lNode: main.lNode.inserted(e, c.hashBuilder.Equal)}
		return gcas(i, main, nln, c)
	default:
		panic("ctrie: I-node main is in an invalid state")
	}
}

// ilookup descends from i, looking up e.key. The final bool reports
// whether the operation linearized; false means the caller must restart.
func (c *Ctrie[K, V]) ilookup(i *iNode[K, V], e *entry[K, V], lev uint, parent *iNode[K, V], startGen *generation) (val V, exists, ok bool) {
	main := gcasRead(i, c) // linearization point
	switch {
	case main.cNode != nil:
		cn := main.cNode
		flag, pos := flagPos(e.hash, lev, cn.bmp)
		if cn.bmp&flag == 0 {
			var zero V
			return zero, false, true
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[K, V]:
			if c.readOnly || startGen == br.gen {
				return c.ilookup(br, e, lev+w, i, startGen)
			}
			if gcas(i, main, &mainNode[K, V]{cNode: cn.renewed(startGen, c)}, c) {
				return c.ilookup(i, e, lev, parent, startGen)
			}
			var zero V
			return zero, false, false
		case *sNode[K, V]:
			if c.hashBuilder.Equal(br.entry.key, e.key) {
				return br.entry.value, true, true
			}
			var zero V
			return zero, false, true
		default:
			panic("ctrie: invalid branch kind")
		}
	case main.tNode != nil:
		return cleanReadOnly(main.tNode, lev, parent, c, e)
	case main.lNode != nil:
		val, exists := main.lNode.lookup(e, c.hashBuilder.Equal)
		return val, exists, true
	default:
		panic("ctrie: I-node main is in an invalid state")
	}
}

// iremove descends from i, removing e.key if present. The final bool
// reports whether the operation linearized; false means restart.
func (c *Ctrie[K, V]) iremove(i *iNode[K, V], e *entry[K, V], lev uint, parent *iNode[K, V], startGen *generation) (val V, exists, ok bool) {
	main := gcasRead(i, c) // linearization point
	switch {
	case main.cNode != nil:
		cn := main.cNode
		flag, pos := flagPos(e.hash, lev, cn.bmp)
		if cn.bmp&flag == 0 {
			var zero V
			return zero, false, true
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[K, V]:
			if startGen == br.gen {
				return c.iremove(br, e, lev+w, i, startGen)
			}
			if gcas(i, main, &mainNode[K, V]{cNode: cn.renewed(startGen, c)}, c) {
				return c.iremove(i, e, lev, parent, startGen)
			}
			var zero V
			return zero, false, false
		case *sNode[K, V]:
			if !c.hashBuilder.Equal(br.entry.key, e.key) {
				var zero V
				return zero, false, true
			}
			ncn := cn.removed(pos, flag, i.gen)
			if !gcas(i, main, toContracted(ncn, lev), c) {
				var zero V
				return zero, false, false
			}
			if parent != nil {
				if gcasRead(i, c).tNode != nil {
					cleanParent(parent, i, e.hash, lev-w, c, startGen)
				}
			}
			return br.entry.value, true, true
		default:
			panic("ctrie: invalid branch kind")
		}
	case main.tNode != nil:
		clean(parent, lev-w, c)
		var zero V
		return zero, false, false
	case main.lNode != nil:
		nl := main.lNode.removed(e, c.hashBuilder.Equal)
		var nln *mainNode[K, V]
		if nl != nil && nl.tail == nil {
			// Exactly one entry left: tomb it instead of leaving a
			// single-element list node around.
			nln = entomb(nl.head)
		} else {
			nln = &mainNode[K, V]{lNode: nl}
		}
		val, exists := main.lNode.lookup(e, c.hashBuilder.Equal)
		if !gcas(i, main, nln, c) {
			var zero V
			return zero, false, false
		}
		return val, exists, true
	default:
		panic("ctrie: I-node main is in an invalid state")
	}
}
