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

import "github.com/wkvns/ctrie/internal/epoch"

// Iterator returns an iterator over a read-only snapshot of c, taken at
// the moment Iterator is called. Later mutations of c are not observed by
// the iterator, and it observes no tearing: it is a consistent,
// point-in-time view (spec §8, unordered full iteration).
func (c *Ctrie[K, V]) Iterator(guard *epoch.Guard) *Iter[K, V] {
	guard.AssertLive()
	iter := &Iter[K, V]{c: c.clone(true)}
	iter.push((*Iter[K, V]).mainIter).iNode = iter.c.readRoot()
	return iter
}

// Iter walks the entries of a Ctrie snapshot. It is not safe for
// concurrent use by multiple goroutines.
type Iter[K, V any] struct {
	c *Ctrie[K, V]
	// stack simulates the recursion stack a straightforward recursive
	// walk of the trie would use: one frame per I-node/C-node/L-node
	// currently open, innermost last.
	stack []iterFrame[K, V]
	curr  *entry[K, V]
}

type iterFrame[K, V any] struct {
	iter  func(*Iter[K, V], *iterFrame[K, V]) bool
	iNode *iNode[K, V]
	slice []branch
	lNode *lNode[K, V]
}

// Next advances the iterator and reports whether an entry is available.
func (it *Iter[K, V]) Next() bool {
	it.curr = nil
	for it.curr == nil && len(it.stack) > 0 {
		if f := &it.stack[len(it.stack)-1]; !f.iter(it, f) {
			it.pop()
		}
	}
	return it.curr != nil
}

// Key returns the current entry's key. Valid only after Next returns true.
func (it *Iter[K, V]) Key() K {
	var zero K
	if it.curr == nil {
		return zero
	}
	return it.curr.key
}

// Value returns the current entry's value. Valid only after Next returns
// true.
func (it *Iter[K, V]) Value() V {
	var zero V
	if it.curr == nil {
		return zero
	}
	return it.curr.value
}

// mainIter opens the main node held by a single I-node.
func (it *Iter[K, V]) mainIter(f *iterFrame[K, V]) bool {
	if f.iNode == nil {
		return false
	}
	main := gcasRead(f.iNode, it.c)
	f.iNode = nil
	switch {
	case main.cNode != nil:
		it.push((*Iter[K, V]).sliceIter).slice = main.cNode.slice
		return true
	case main.lNode != nil:
		it.push((*Iter[K, V]).listIter).lNode = main.lNode
		return true
	case main.tNode != nil:
		// A read-only snapshot never contracts a tombed path, so the
		// walk must be able to surface an entry straight out of a
		// tNode instead of requiring the path above it be cleaned
		// first (the regression this guards: failing to handle this
		// case silently drops every tombed entry from iteration).
		it.curr = main.tNode.sNode.entry
		return true
	}
	panic("ctrie: I-node main is in an invalid state")
}

// sliceIter walks the branches of a C-node.
func (it *Iter[K, V]) sliceIter(f *iterFrame[K, V]) bool {
	a := f.slice
	if len(a) == 0 {
		return false
	}
	f.slice = a[1:]
	switch b := a[0].(type) {
	case *iNode[K, V]:
		it.push((*Iter[K, V]).mainIter).iNode = b
		return true
	case *sNode[K, V]:
		it.curr = b.entry
		return true
	}
	panic("ctrie: invalid branch kind")
}

// listIter walks an L-node's collision chain.
func (it *Iter[K, V]) listIter(f *iterFrame[K, V]) bool {
	l := f.lNode
	if l == nil {
		return false
	}
	f.lNode = l.tail
	it.curr = l.head.entry
	return true
}

func (it *Iter[K, V]) pop() {
	it.stack = it.stack[:len(it.stack)-1]
}

// push appends a new frame driven by f and returns it for the caller to
// populate.
func (it *Iter[K, V]) push(f func(*Iter[K, V], *iterFrame[K, V]) bool) *iterFrame[K, V] {
	it.stack = append(it.stack, iterFrame[K, V]{iter: f})
	return &it.stack[len(it.stack)-1]
}
