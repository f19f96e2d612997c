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

// generation demarcates Ctrie clones. Two generations are equal only when
// they are literally the same allocation: an incrementing integer counter
// would be unsound across wraparound, and two zero-size allocations can
// share an address, which is why the struct carries a field.
type generation struct{ _ bool }

func newGeneration() *generation {
	return &generation{}
}
