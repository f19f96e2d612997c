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
	"github.com/davecgh/go-spew/spew"
	"github.com/wkvns/ctrie/internal/epoch"
)

// dumpConfig renders unexported fields so a dump actually shows the trie
// shape (bitmaps, generations, tomb state) instead of stopping at the
// first pointer.
var dumpConfig = &spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Dump returns a human-readable rendering of the trie's internal node
// structure rooted at the current snapshot: C-node bitmaps, S-node
// entries, tombs, and collision lists. It's meant for tests and ad-hoc
// debugging, not for anything a caller should parse.
func (c *Ctrie[K, V]) Dump(guard *epoch.Guard) string {
	guard.AssertLive()
	root := c.readRoot()
	main := gcasRead(root, c)
	return dumpConfig.Sdump(main)
}

// String implements fmt.Stringer by pinning a guard for the duration of a
// single Dump call.
func (c *Ctrie[K, V]) String() string {
	g := epoch.Pin()
	defer g.Unpin()
	return c.Dump(g)
}
