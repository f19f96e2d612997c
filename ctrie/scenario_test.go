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
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

// modHasher returns a HashBuilder whose Hash reduces every string key to
// its integer value mod m, so distinct keys can be forced to collide on
// purpose. Keys that don't parse as integers all hash to 0.
func modHasher(m uint64) HashBuilder[string] {
	return HashBuilder[string]{
		Hash: func(key string) uint64 {
			n, _ := strconv.Atoi(key)
			return uint64(n) % m
		},
		Equal: func(a, b string) bool { return a == b },
	}
}

func TestScenarioSequentialPopulation(t *testing.T) {
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	for i := 0; i < 2000; i += 2 {
		trie.Insert(strconv.Itoa(i), 3*i, g)
	}
	for i := 0; i < 2000; i += 2 {
		val, ok := trie.Lookup(strconv.Itoa(i), g)
		assert.True(t, ok)
		assert.Equal(t, 3*i, val)
	}
	for i := 1; i < 2000; i += 2 {
		_, ok := trie.Lookup(strconv.Itoa(i), g)
		assert.False(t, ok)
	}
}

func TestScenarioHashCollision(t *testing.T) {
	trie := WithHasher[string, int](modHasher(2))
	g := trie.Pin()
	defer g.Unpin()

	letters := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
	for k, v := range letters {
		trie.Insert(k, v, g)
	}
	for k, v := range letters {
		got, ok := trie.Lookup(k, g)
		assert.True(t, ok)
		assert.Equal(t, v, got)
	}

	trie.Remove("c", g)
	_, ok := trie.Lookup("c", g)
	assert.False(t, ok)
	for _, k := range []string{"a", "b", "d"} {
		got, ok := trie.Lookup(k, g)
		assert.True(t, ok)
		assert.Equal(t, letters[k], got)
	}

	trie.Remove("a", g)
	trie.Remove("b", g)
	trie.Remove("d", g)
	assert.Equal(t, 0, trie.Len(g))
}

func TestScenarioSnapshotIsolation(t *testing.T) {
	trie := bytesTrie[int]()
	g := trie.Pin()
	defer g.Unpin()

	for i := 0; i < 100; i++ {
		trie.Insert(strconv.Itoa(i), i, g)
	}
	snap := trie.Snapshot(g)

	trie.Insert("50", 999, g)

	got, ok := trie.Lookup("50", g)
	assert.True(t, ok)
	assert.Equal(t, 999, got)

	got, ok = snap.Lookup("50", g)
	assert.True(t, ok)
	assert.Equal(t, 50, got)
}

func TestScenarioConcurrentDisjointInserts(t *testing.T) {
	const n, k = 8, 500
	trie := bytesTrie[int]()

	var eg errgroup.Group
	for worker := 0; worker < n; worker++ {
		worker := worker
		eg.Go(func() error {
			g := trie.Pin()
			defer g.Unpin()
			base := worker * k
			for i := 0; i < k; i++ {
				trie.Insert(strconv.Itoa(base+i), base+i, g)
			}
			return nil
		})
	}
	require := assert.New(t)
	require.NoError(eg.Wait())

	g := trie.Pin()
	defer g.Unpin()
	require.Equal(n*k, trie.Len(g))
	for worker := 0; worker < n; worker++ {
		base := worker * k
		for i := 0; i < k; i++ {
			val, ok := trie.Lookup(strconv.Itoa(base+i), g)
			require.True(ok)
			require.Equal(base+i, val)
		}
	}
}

func TestScenarioConcurrentOverlappingInsertRemove(t *testing.T) {
	trie := bytesTrie[int]()
	eg, ctx := errgroup.WithContext(context.Background())

	churn := func(value int) func() error {
		return func() error {
			g := trie.Pin()
			defer g.Unpin()
			for i := 0; i < 10000; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				trie.Insert("x", value, g)
				trie.Remove("x", g)
			}
			return nil
		}
	}
	eg.Go(churn(1))
	eg.Go(churn(2))
	assert.NoError(t, eg.Wait())

	g := trie.Pin()
	defer g.Unpin()
	_, ok := trie.Lookup("x", g)
	assert.False(t, ok, "x must be absent once both churners have finished")
}

func TestScenarioEntombThenResurrect(t *testing.T) {
	// Two keys whose low 6 bits collide, forcing a one-level descent
	// into a nested C-node before they diverge.
	trie := WithHasher[string, int](HashBuilder[string]{
		Hash: func(key string) uint64 {
			if key == "p" {
				return 5
			}
			return 5 + 1<<w // shares bits [0:6) with "p", diverges at the next level
		},
		Equal: func(a, b string) bool { return a == b },
	})
	g := trie.Pin()
	defer g.Unpin()

	trie.Insert("p", 1, g)
	trie.Insert("q", 2, g)
	trie.Remove("q", g)

	val, ok := trie.Lookup("p", g)
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	// The parent path must have been contracted: a fresh traversal sees
	// a plain S-node, not a residual T-node, and further mutation works.
	trie.Insert("q", 3, g)
	val, ok = trie.Lookup("q", g)
	assert.True(t, ok)
	assert.Equal(t, 3, val)
}
