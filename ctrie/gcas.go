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

// gcas is the generation-aware compare-and-swap every trie mutation goes
// through. An ordinary CAS on i.main can't tell whether the root's
// generation has moved on underneath it while the update was being
// prepared; gcas ties publication to a root-generation check so a stale
// write through an old snapshot gets unwound instead of silently
// corrupting the live tree.
//
// old is the main node the caller just read via gcasRead; n is the
// proposed replacement. gcas reports whether the update committed; false
// means the caller must restart its operation from the root.
func gcas[K, V any](i *iNode[K, V], old, n *mainNode[K, V], ctrie *Ctrie[K, V]) bool {
	// Publish intent: if the CAS below succeeds but the commit is
	// aborted, n.prev tells gcasComplete what to roll i.main back to.
	gatomic.StorePointer(&n.prev, old)
	if !gatomic.CompareAndSwapPointer(&i.main, old, n) {
		return false
	}
	gcasComplete(i, n, ctrie)
	return gatomic.LoadPointer(&n.prev) == nil
}

// gcasRead is the only sanctioned way to read an I-node's main node
// during traversal: a plain load could observe a main node whose GCAS
// hasn't committed yet, which gcasRead resolves by helping finish it.
func gcasRead[K, V any](i *iNode[K, V], ctrie *Ctrie[K, V]) *mainNode[K, V] {
	m := gatomic.LoadPointer(&i.main)
	if gatomic.LoadPointer(&m.prev) == nil {
		return m
	}
	return gcasComplete(i, m, ctrie)
}

// gcasComplete commits (or unwinds) an in-flight GCAS. It is idempotent:
// any thread that observes a non-nil prev can call this to help the
// operation along, regardless of who started it.
func gcasComplete[K, V any](i *iNode[K, V], m *mainNode[K, V], ctrie *Ctrie[K, V]) *mainNode[K, V] {
	for {
		prev := gatomic.LoadPointer(&m.prev)
		if prev == nil {
			return m
		}

		root := ctrie.rdcssReadRoot(true)

		if prev.failed != nil {
			// The GCAS that produced m already lost the race against a
			// snapshot; unwind i.main back to what it held before.
			rollback := prev.failed
			if gatomic.CompareAndSwapPointer(&i.main, m, rollback) {
				return rollback
			}
			m = gatomic.LoadPointer(&i.main)
			continue
		}

		if root.gen == i.gen && !ctrie.readOnly {
			// Still the same tree version: commit by clearing prev.
			if gatomic.CompareAndSwapPointer(&m.prev, prev, nil) {
				return m
			}
			continue
		}

		// A snapshot advanced the generation while this GCAS was in
		// flight: mark it failed so the next reader rolls it back.
		failed := &mainNode[K, V]{failed: prev}
		gatomic.CompareAndSwapPointer(&m.prev, prev, failed)
		m = gatomic.LoadPointer(&i.main)
	}
}
