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

package ctrie

import "math/bits"

// w is the number of hash bits consumed per trie level, fixed by the
// design at 6 (giving 64-way C-nodes). Implementations may not vary it.
const w = 6

// hashBits is the width of the hash codes the trie slices: once a
// traversal has consumed every bit, two still-colliding keys can only be
// distinguished by a full L-node comparison.
const hashBits = 64

// branch is either a *iNode or a *sNode: the sum type taken by a slot of
// a cNode's array.
type branch interface{}

// entry holds a key and, for entries that carry one, its value, plus the
// precomputed hash so it never needs recomputing as an operation
// recurses down the trie.
type entry[K, V any] struct {
	key   K
	value V
	hash  uint64
}

// sNode is an immutable (K, V) leaf.
type sNode[K, V any] struct {
	entry *entry[K, V]
}

// tNode is an immutable wrapper marking that the enclosing I-node has been
// tombed: the path above it must be contracted before any further
// mutation proceeds through it. Once an I-node's main node is a tNode, it
// is terminal — it is never replaced by anything else.
type tNode[K, V any] struct {
	sNode *sNode[K, V]
}

// untombed returns a fresh S-node carrying the tomb's entry, suitable for
// resurrecting into a parent C-node's branch array.
func (t *tNode[K, V]) untombed() *sNode[K, V] {
	return &sNode[K, V]{entry: &entry[K, V]{
		key:   t.sNode.entry.key,
		value: t.sNode.entry.value,
		hash:  t.sNode.entry.hash,
	}}
}

// lNode is a persistent singly-linked list of S-nodes sharing a full hash
// collision. It is only ever produced at maximum depth.
type lNode[K, V any] struct {
	head *sNode[K, V]
	tail *lNode[K, V]
}

// lookup scans the list linearly for a matching key.
func (l *lNode[K, V]) lookup(e *entry[K, V], eq func(K, K) bool) (V, bool) {
	for ; l != nil; l = l.tail {
		if eq(e.key, l.head.entry.key) {
			return l.head.entry.value, true
		}
	}
	var zero V
	return zero, false
}

// inserted returns a new list with e added, replacing any existing entry
// for the same key. The input list is left untouched.
func (l *lNode[K, V]) inserted(e *entry[K, V], eq func(K, K) bool) *lNode[K, V] {
	return &lNode[K, V]{
		head: &sNode[K, V]{entry: e},
		tail: l.removed(e, eq),
	}
}

// removed returns a new list with the entry for e's key removed, or the
// original list if no such entry exists.
func (l *lNode[K, V]) removed(e *entry[K, V], eq func(K, K) bool) *lNode[K, V] {
	for at := l; at != nil; at = at.tail {
		if eq(e.key, at.head.entry.key) {
			return l.without(at)
		}
	}
	return l
}

// without rebuilds the list with the given node spliced out.
func (l *lNode[K, V]) without(target *lNode[K, V]) *lNode[K, V] {
	if l == target {
		return l.tail
	}
	return &lNode[K, V]{
		head: l.head,
		tail: l.tail.without(target),
	}
}

// cNode is a bitmapped 64-way sparse array of branches: bit i of bmp is
// set iff hash-slice i has a branch, stored at index popcount(bmp &
// (1<<i - 1)) of slice. Invariant I4: popcount(bmp) == len(slice) always.
type cNode[K, V any] struct {
	bmp   uint64
	slice []branch
	gen   *generation
}

// newMainNode builds the main node, at level lev, for two S-nodes whose
// hashes collided at the level above: a C-node holding both directly if their
// hash-slices differ, a chain of singleton C-nodes wrapping an I-node if
// they keep colliding, or (once the full 64 bits are exhausted) an L-node.
func newMainNode[K, V any](x *sNode[K, V], xHash uint64, y *sNode[K, V], yHash uint64, lev uint, gen *generation) *mainNode[K, V] {
	if lev >= hashBits {
		return &mainNode[K, V]{lNode: &lNode[K, V]{
			head: y,
			tail: &lNode[K, V]{head: x},
		}}
	}
	xIdx := (xHash >> lev) & 0x3f
	yIdx := (yHash >> lev) & 0x3f
	bmp := uint64(1)<<xIdx | uint64(1)<<yIdx

	switch {
	case xIdx == yIdx:
		sub := newMainNode(x, xHash, y, yHash, lev+w, gen)
		in := &iNode[K, V]{main: sub, gen: gen}
		return &mainNode[K, V]{cNode: &cNode[K, V]{bmp: bmp, slice: []branch{in}, gen: gen}}
	case xIdx < yIdx:
		return &mainNode[K, V]{cNode: &cNode[K, V]{bmp: bmp, slice: []branch{x, y}, gen: gen}}
	default:
		return &mainNode[K, V]{cNode: &cNode[K, V]{bmp: bmp, slice: []branch{y, x}, gen: gen}}
	}
}

// inserted returns a copy of c with br placed at pos and flag set in the
// bitmap.
func (c *cNode[K, V]) inserted(pos int, flag uint64, br branch, gen *generation) *cNode[K, V] {
	slice := make([]branch, len(c.slice)+1)
	copy(slice, c.slice[:pos])
	slice[pos] = br
	copy(slice[pos+1:], c.slice[pos:])
	return &cNode[K, V]{bmp: c.bmp | flag, slice: slice, gen: gen}
}

// updated returns a copy of c with the branch at pos replaced by br.
func (c *cNode[K, V]) updated(pos int, br branch, gen *generation) *cNode[K, V] {
	slice := make([]branch, len(c.slice))
	copy(slice, c.slice)
	slice[pos] = br
	return &cNode[K, V]{bmp: c.bmp, slice: slice, gen: gen}
}

// removed returns a copy of c with the branch at pos dropped and flag
// cleared in the bitmap.
func (c *cNode[K, V]) removed(pos int, flag uint64, gen *generation) *cNode[K, V] {
	slice := make([]branch, len(c.slice)-1)
	copy(slice, c.slice[:pos])
	copy(slice[pos:], c.slice[pos+1:])
	return &cNode[K, V]{bmp: c.bmp ^ flag, slice: slice, gen: gen}
}

// renewed deep-copies c into generation gen, re-stamping each I-node child
// with copyToGen. S-node children are shared: they're immutable leaves, so
// there's nothing generation-specific about them.
func (c *cNode[K, V]) renewed(gen *generation, ctrie *Ctrie[K, V]) *cNode[K, V] {
	slice := make([]branch, len(c.slice))
	for i, br := range c.slice {
		if in, ok := br.(*iNode[K, V]); ok {
			slice[i] = in.copyToGen(gen, ctrie)
		} else {
			slice[i] = br
		}
	}
	return &cNode[K, V]{bmp: c.bmp, slice: slice, gen: gen}
}

// mainNode is the tagged-union payload referenced by an I-node: exactly
// one of cNode, tNode, lNode is set in the steady state, plus the prev
// slot GCAS uses to publish and, on abort, retract an update. failed
// marks a prev value as a rolled-back GCAS attempt (never a steady state
// by itself).
type mainNode[K, V any] struct {
	cNode *cNode[K, V]
	tNode *tNode[K, V]
	lNode *lNode[K, V]

	// failed wraps the prev value that must be restored because the
	// GCAS that produced this main node is being aborted.
	failed *mainNode[K, V]

	// prev is null outside of an in-flight GCAS; non-null marks a
	// pending or aborted update still being committed or unwound.
	prev *mainNode[K, V]
}

// entomb wraps a singleton branch in a T-node, the terminal state for a
// contracted I-node.
func entomb[K, V any](s *sNode[K, V]) *mainNode[K, V] {
	return &mainNode[K, V]{tNode: &tNode[K, V]{sNode: s}}
}

// resurrect turns a child I-node back into a plain branch if its main
// node has been tombed, otherwise leaves it as an indirection. Used while
// compressing a C-node so a now-tombed child doesn't linger as dead
// indirection.
func resurrect[K, V any](in *iNode[K, V], main *mainNode[K, V]) branch {
	if main.tNode != nil {
		return main.tNode.untombed()
	}
	return in
}

// toContracted collapses a C-node that no longer needs a full array: once
// it holds exactly one S-node and isn't at the root, it becomes a T-node
// instead, so the next operation to see it can contract the path above.
func toContracted[K, V any](cn *cNode[K, V], lev uint) *mainNode[K, V] {
	if lev > 0 && len(cn.slice) == 1 {
		if s, ok := cn.slice[0].(*sNode[K, V]); ok {
			return entomb(s)
		}
	}
	return &mainNode[K, V]{cNode: cn}
}

// toCompressed resurrects any tombed children of cn and then applies
// toContracted. gen is the generation the rebuilt C-node should carry;
// passing the owning I-node's current generation (rather than leaving it
// unset) avoids a needless renewal the next time a mutator descends
// through it.
func toCompressed[K, V any](cn *cNode[K, V], lev uint, gen *generation) *mainNode[K, V] {
	slice := make([]branch, len(cn.slice))
	for i, br := range cn.slice {
		switch br := br.(type) {
		case *iNode[K, V]:
			main := loadMain(br)
			slice[i] = resurrect(br, main)
		case *sNode[K, V]:
			slice[i] = br
		default:
			panic("ctrie: invalid branch kind during compression")
		}
	}
	return toContracted(&cNode[K, V]{bmp: cn.bmp, slice: slice, gen: gen}, lev)
}

// flagPos computes, for a hash and trie level, the bitmap bit for the
// corresponding 6-bit hash-slice and the branch-array index that bit maps
// to (the popcount of all set bits below it).
func flagPos(hash uint64, lev uint, bmp uint64) (flag uint64, pos int) {
	idx := (hash >> lev) & 0x3f
	flag = uint64(1) << idx
	pos = bits.OnesCount64(bmp & (flag - 1))
	return flag, pos
}
