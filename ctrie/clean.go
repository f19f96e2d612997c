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

// clean performs a best-effort compression of i's C-node: a failed GCAS
// here is ignored, because whichever other operation won the race will
// either have compressed it itself or will retry and see the new shape.
func clean[K, V any](i *iNode[K, V], lev uint, ctrie *Ctrie[K, V]) {
	main := gcasRead(i, ctrie)
	if main.cNode != nil {
		gcas(i, main, toCompressed(main.cNode, lev, i.gen), ctrie)
	}
}

// cleanReadOnly resolves a tomb encountered by ilookup. A read-write
// trie can't observably serve a value out of a tomb — it must contract
// the path first and have the caller restart — but a read-only snapshot
// has no write path available, so the tombed entry is the only copy of
// the value it will ever get to serve.
func cleanReadOnly[K, V any](tn *tNode[K, V], lev uint, parent *iNode[K, V], ctrie *Ctrie[K, V], e *entry[K, V]) (val V, exists, ok bool) {
	if !ctrie.readOnly {
		clean(parent, lev-w, ctrie)
		var zero V
		return zero, false, false
	}
	if tn.sNode.entry.hash == e.hash && ctrie.hashBuilder.Equal(tn.sNode.entry.key, e.key) {
		return tn.sNode.entry.value, true, true
	}
	var zero V
	return zero, false, true
}

// cleanParent is called after a remove leaves child tombed: it contracts
// parent's C-node in place of the now-dead indirection to child, so the
// tomb doesn't linger reachable from a grandparent. A lost GCAS is retried
// as long as the root generation is still startGen; once the generation
// has moved on, or parent no longer points at a tombed child, it gives up.
func cleanParent[K, V any](parent, child *iNode[K, V], hash uint64, lev uint, ctrie *Ctrie[K, V], startGen *generation) {
	main := loadMain(child)
	parentMain := loadMain(parent)
	if parentMain.cNode == nil {
		return
	}
	flag, pos := flagPos(hash, lev, parentMain.cNode.bmp)
	if parentMain.cNode.bmp&flag == 0 {
		return
	}
	if parentMain.cNode.slice[pos] != branch(child) || main.tNode == nil {
		return
	}
	ncn := parentMain.cNode.updated(pos, resurrect(child, main), child.gen)
	if gcas(parent, parentMain, toContracted(ncn, lev), ctrie) {
		return
	}
	if ctrie.readRoot().gen != startGen {
		return
	}
	cleanParent(parent, child, hash, lev, ctrie, startGen)
}
