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

import (
	"math/bits"
	"strconv"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/wkvns/ctrie/internal/epoch"
)

// P1: insert(k,v); lookup(k) == Some(v).
func TestPropertyInsertThenLookup(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("k", 7, g)
	val, ok := trie.Lookup("k", g)
	c.Assert(ok, qt.IsTrue)
	c.Assert(val, qt.Equals, 7)
}

// P2: insert(k,v1); insert(k,v2); lookup(k) == Some(v2).
func TestPropertyInsertOverwrites(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("k", 1, g)
	trie.Insert("k", 2, g)
	val, ok := trie.Lookup("k", g)
	c.Assert(ok, qt.IsTrue)
	c.Assert(val, qt.Equals, 2)
}

// P3: insert(k,v); remove(k); lookup(k) == None.
func TestPropertyRemoveErases(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("k", 1, g)
	trie.Remove("k", g)
	_, ok := trie.Lookup("k", g)
	c.Assert(ok, qt.IsFalse)
}

// P4: every C-node satisfies popcount(bitmap) == len(array), across a mix
// of inserts and removes that is likely to exercise every C-node shape
// (fresh branch, renewed branch, contracted-then-reinflated branch).
func TestPropertyBitmapPopcountInvariant(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	for i := 0; i < 5000; i++ {
		trie.Insert(strconv.Itoa(i), i, g)
	}
	for i := 0; i < 5000; i += 3 {
		trie.Remove(strconv.Itoa(i), g)
	}
	for i := 0; i < 5000; i += 5 {
		trie.Insert(strconv.Itoa(i), i*2, g)
	}

	checkCNodePopcount(c, trie.readRoot(), trie)
}

func checkCNodePopcount[K comparable, V any](c *qt.C, i *iNode[K, V], trie *Ctrie[K, V]) {
	main := gcasRead(i, trie)
	if main.cNode == nil {
		return
	}
	c.Assert(bits.OnesCount64(main.cNode.bmp), qt.Equals, len(main.cNode.slice))
	for _, br := range main.cNode.slice {
		if child, ok := br.(*iNode[K, V]); ok {
			checkCNodePopcount(c, child, trie)
		}
	}
}

// P5: no I-node's main is ever observable as Failed by gcasRead — i.e.
// gcasRead always resolves to a steady-state node, never leaves a dangling
// rollback marker visible to a later reader.
func TestPropertyNoFailedMainObservable(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()

	var wg sync.WaitGroup
	wg.Add(3)
	for w := 0; w < 3; w++ {
		w := w
		go func() {
			defer wg.Done()
			g := trie.Pin()
			defer g.Unpin()
			for i := 0; i < 2000; i++ {
				key := strconv.Itoa(w*2000 + i)
				trie.Insert(key, i, g)
				trie.Snapshot(g)
				trie.Remove(key, g)
			}
		}()
	}
	wg.Wait()

	g := trie.Pin()
	defer g.Unpin()
	assertNoFailedMain(c, trie.readRoot(), trie)
}

func assertNoFailedMain[K comparable, V any](c *qt.C, i *iNode[K, V], trie *Ctrie[K, V]) {
	m := gcasRead(i, trie)
	c.Assert(m.failed, qt.IsNil)
	if m.cNode != nil {
		for _, br := range m.cNode.slice {
			if child, ok := br.(*iNode[K, V]); ok {
				assertNoFailedMain(c, child, trie)
			}
		}
	}
}

// P6: Snapshot is O(1) in the number of entries — a coarse check that a
// snapshot of a much larger trie doesn't take proportionally longer.
func TestPropertySnapshotIsConstantTime(t *testing.T) {
	c := qt.New(t)
	small := bytesTrie[int]()
	large := bytesTrie[int]()
	g := small.Pin()
	defer g.Unpin()
	g2 := large.Pin()
	defer g2.Unpin()

	for i := 0; i < 10; i++ {
		small.Insert(strconv.Itoa(i), i, g)
	}
	for i := 0; i < 100000; i++ {
		large.Insert(strconv.Itoa(i), i, g2)
	}

	timeIt := func(trie *Ctrie[string, int], g *epoch.Guard) time.Duration {
		start := time.Now()
		for i := 0; i < 200; i++ {
			trie.Snapshot(g)
		}
		return time.Since(start)
	}
	smallDur := timeIt(small, g)
	largeDur := timeIt(large, g2)

	// Generous bound: large's snapshot cost should not scale with its
	// 10,000x larger entry count. A regression to O(n) snapshotting
	// would blow through this by orders of magnitude.
	c.Assert(largeDur < smallDur*50+time.Second, qt.IsTrue,
		qt.Commentf("small=%v large=%v", smallDur, largeDur))
}

// P7: a write to a snapshot does not alter a lookup performed against its
// parent, either before or after the write.
func TestPropertySnapshotWriteIsolation(t *testing.T) {
	c := qt.New(t)
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("k", 1, g)
	before, _ := trie.Lookup("k", g)

	snap := trie.Snapshot(g)
	snap.Insert("k", 2, g)

	after, _ := trie.Lookup("k", g)

	c.Assert(before, qt.Equals, 1)
	c.Assert(after, qt.Equals, 1)
}

// P9: an L-node is only ever constructed once two keys share every one of
// their 64 hash bits; this drives two colliding-at-every-level keys down
// to maximal depth and confirms both remain independently readable only
// because they're resolved by key equality inside the L-node, not by
// position.
func TestPropertyLNodeOnlyOnFullCollision(t *testing.T) {
	c := qt.New(t)
	trie := WithHasher[string, int](HashBuilder[string]{
		Hash:  func(string) uint64 { return 0xdeadbeefcafebabe },
		Equal: func(a, b string) bool { return a == b },
	})
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("alpha", 1, g)
	trie.Insert("beta", 2, g)

	va, oka := trie.Lookup("alpha", g)
	vb, okb := trie.Lookup("beta", g)
	c.Assert(oka, qt.IsTrue)
	c.Assert(okb, qt.IsTrue)
	c.Assert(va, qt.Equals, 1)
	c.Assert(vb, qt.Equals, 2)

	ln := findLNode(trie.readRoot(), trie)
	c.Assert(ln, qt.Not(qt.IsNil))
}

// findLNode descends through single-child C-node wrappers looking for the
// L-node a full hash collision eventually forces.
func findLNode[K comparable, V any](i *iNode[K, V], trie *Ctrie[K, V]) *lNode[K, V] {
	main := gcasRead(i, trie)
	if main.lNode != nil {
		return main.lNode
	}
	if main.cNode != nil {
		for _, br := range main.cNode.slice {
			if child, ok := br.(*iNode[K, V]); ok {
				if ln := findLNode(child, trie); ln != nil {
					return ln
				}
			}
		}
	}
	return nil
}

// P10: after a remove leaves a singleton S-node path, a subsequent
// traversal observes the contracted form — no T-node remains reachable.
func TestPropertyContractionIsLive(t *testing.T) {
	c := qt.New(t)
	trie := WithHasher[string, int](HashBuilder[string]{
		Hash:  func(string) uint64 { return 0 },
		Equal: func(a, b string) bool { return a == b },
	})
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("a", 1, g)
	trie.Insert("b", 2, g)
	trie.Remove("b", g)

	// Touch the trie again so clean() on the read path has a chance to
	// run; then confirm no tNode remains reachable from the root.
	trie.Lookup("a", g)
	c.Assert(hasReachableTNode(trie.readRoot(), trie), qt.IsFalse)
}

func hasReachableTNode[K comparable, V any](i *iNode[K, V], trie *Ctrie[K, V]) bool {
	main := loadMain(i)
	if main.tNode != nil {
		return true
	}
	if main.cNode != nil {
		for _, br := range main.cNode.slice {
			if child, ok := br.(*iNode[K, V]); ok {
				if hasReachableTNode(child, trie) {
					return true
				}
			}
		}
	}
	return false
}
