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

// Package epoch implements the pin/guard handle that every Ctrie operation
// is required to carry. In the systems this design was originally built
// for, a guard is load-bearing: it marks a thread as "inside" an epoch so a
// reclaimer knows which unlinked nodes are still possibly reachable and
// must not be freed yet. Go's tracing garbage collector already makes that
// failure mode — freeing a node a concurrent reader can still see —
// impossible: an unlinked iNode, cNode, or sNode stays alive for exactly as
// long as something still references it, guard or no guard. So Guard here
// carries no reclamation logic at all. What it does carry is the dynamic
// contract the design relies on elsewhere: a released guard must not be
// usable again, so that a caller holding one past its Unpin can't be
// mistaken for operating within a live epoch. That check is real and
// panics on violation; everything else about Guard is a deliberately inert
// shim satisfying an API shape the garbage collector has already made
// unnecessary to implement for real.
package epoch

import "sync/atomic"

// Guard marks the holder as pinned to the current epoch for the duration
// of one or more Ctrie operations. The zero Guard is not valid; obtain one
// from Pin.
type Guard struct {
	live int32
}

// active counts guards that have been pinned but not yet released. It
// exists purely as a diagnostic: nothing in the package consults it to
// make a decision.
var active int32

// Pin returns a new, live guard.
func Pin() *Guard {
	atomic.AddInt32(&active, 1)
	return &Guard{live: 1}
}

// Active reports how many guards are currently pinned.
func Active() int {
	return int(atomic.LoadInt32(&active))
}

// Unpin releases the guard. Using it afterwards panics.
func (g *Guard) Unpin() {
	if !atomic.CompareAndSwapInt32(&g.live, 1, 0) {
		panic("epoch: guard released twice")
	}
	atomic.AddInt32(&active, -1)
}

// AssertLive panics if g is nil or has already been released. Every Ctrie
// entry point calls this before touching the trie.
func (g *Guard) AssertLive() {
	if g == nil {
		panic("epoch: operation called with a nil guard; call Pin first")
	}
	if atomic.LoadInt32(&g.live) == 0 {
		panic("epoch: operation called with a released guard")
	}
}
