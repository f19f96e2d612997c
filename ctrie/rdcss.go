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

import "github.com/wkvns/ctrie/gatomic"

// rdcssDescriptor is the restricted double-compare-and-swap descriptor
// installed at the root slot while a snapshot is being taken. It is the
// only place RDCSS is needed: every other mutation uses plain gcas.
type rdcssDescriptor[K, V any] struct {
	old       *iNode[K, V]
	expected  *mainNode[K, V]
	nv        *iNode[K, V]
	committed int32
}

// readRoot performs a linearizable read of the trie root.
func (c *Ctrie[K, V]) readRoot() *iNode[K, V] {
	return c.rdcssReadRoot(false)
}

// rdcssReadRoot reads the root, helping finish any in-flight RDCSS it
// observes there first. abort controls what "helping" means when this
// read is itself happening from inside a gcasComplete: a prioritized read
// aborts the RDCSS instead of trying to complete it, so that a root swap
// racing a GCAS can't deadlock against it.
func (c *Ctrie[K, V]) rdcssReadRoot(abort bool) *iNode[K, V] {
	r := gatomic.LoadPointer(&c.root)
	if r.rdcss != nil {
		return c.rdcssComplete(abort)
	}
	return r
}

// rdcssRoot installs a descriptor at the root slot that swaps it from old
// to nv, conditioned on old's main node still equalling expected. This is
// how Snapshot/ReadOnlySnapshot take an O(1) clone: the root I-node
// itself is replaced, not anything beneath it.
func (c *Ctrie[K, V]) rdcssRoot(old *iNode[K, V], expected *mainNode[K, V], nv *iNode[K, V]) bool {
	desc := &iNode[K, V]{
		rdcss: &rdcssDescriptor[K, V]{
			old:      old,
			expected: expected,
			nv:       nv,
		},
	}
	if !c.casRoot(old, desc) {
		return false
	}
	c.rdcssComplete(false)
	return gatomic.LoadInt32(&desc.rdcss.committed) == 1
}

// rdcssComplete finishes (or aborts) whatever RDCSS descriptor currently
// sits in the root slot, installed by this call's own rdcssRoot or by a
// concurrent one this thread is helping along.
func (c *Ctrie[K, V]) rdcssComplete(abort bool) *iNode[K, V] {
	for {
		r := gatomic.LoadPointer(&c.root)
		if r.rdcss == nil {
			return r
		}
		desc := r.rdcss
		old, expected, nv := desc.old, desc.expected, desc.nv

		if abort {
			if c.casRoot(r, old) {
				return old
			}
			continue
		}

		oldMain := gcasRead(old, c)
		if oldMain == expected {
			if c.casRoot(r, nv) {
				gatomic.StoreInt32(&desc.committed, 1)
				return nv
			}
			continue
		}
		if c.casRoot(r, old) {
			return old
		}
	}
}

// casRoot performs a bare CAS on the root slot.
func (c *Ctrie[K, V]) casRoot(old, nv *iNode[K, V]) bool {
	c.assertReadWrite()
	return gatomic.CompareAndSwapPointer(&c.root, old, nv)
}
