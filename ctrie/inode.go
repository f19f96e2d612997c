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

// iNode is an indirection node: the only mutable node in the trie. It
// remains present even as the nodes above and below it change, which is
// what lets thread-safety live entirely in CAS on the I-node's main
// pointer rather than on the branch array itself.
type iNode[K, V any] struct {
	main *mainNode[K, V]
	gen  *generation

	// rdcss is non-nil only while an RDCSS operation is installing a
	// descriptor at the root slot; a reader that observes one helps
	// finish it before using the I-node. Only ever set on the iNode
	// value stored directly in Ctrie.root.
	rdcss *rdcssDescriptor[K, V]
}

// loadMain atomically loads i's main-node pointer without going through
// the GCAS-aware gcasRead: callers that already know the result can't be
// mid-GCAS (e.g. a compression pass over an already-gcasRead C-node's
// children) use this directly.
func loadMain[K, V any](i *iNode[K, V]) *mainNode[K, V] {
	return gatomic.LoadPointer(&i.main)
}

// copyToGen returns a copy of i re-stamped with gen, whose main node is
// obtained via a GCAS-linearizable read of i itself. That main node and
// everything beneath it are shared, not copied: only i itself is rebuilt.
func (i *iNode[K, V]) copyToGen(gen *generation, ctrie *Ctrie[K, V]) *iNode[K, V] {
	main := gcasRead(i, ctrie)
	return &iNode[K, V]{main: main, gen: gen}
}
