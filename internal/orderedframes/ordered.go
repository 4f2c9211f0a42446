/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * archivemixer
 * This file is part of archivemixer.
 *
 * archivemixer is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * archivemixer is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 */

// Package orderedframes implements the pts-ordered map the mixer needs in
// several places (audio mix slots, queued output frames). No third-party
// ordered-map or btree library in the dependency set supports "erase the
// smallest key" directly, so this is a small sorted-slice map: inserts are
// O(log n) binary search + O(n) shift, which is fine at the sizes this
// mixer ever holds (a few thousand live keys at most).
package orderedframes

import "sort"

// Map is a std::map<int64_t, V>-equivalent ordered by key.
type Map[V any] struct {
	keys   []int64
	values []V
}

// New returns an empty ordered map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

func (m *Map[V]) search(key int64) int {
	return sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= key })
}

// Set inserts or overwrites the value at key.
func (m *Map[V]) Set(key int64, value V) {
	i := m.search(key)
	if i < len(m.keys) && m.keys[i] == key {
		m.values[i] = value
		return
	}
	m.keys = append(m.keys, 0)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = key

	var zero V
	m.values = append(m.values, zero)
	copy(m.values[i+1:], m.values[i:])
	m.values[i] = value
}

// Get returns the value at key and whether it was present.
func (m *Map[V]) Get(key int64) (V, bool) {
	i := m.search(key)
	if i < len(m.keys) && m.keys[i] == key {
		return m.values[i], true
	}
	var zero V
	return zero, false
}

// Has reports whether key is present.
func (m *Map[V]) Has(key int64) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present.
func (m *Map[V]) Delete(key int64) {
	i := m.search(key)
	if i < len(m.keys) && m.keys[i] == key {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
		m.values = append(m.values[:i], m.values[i+1:]...)
	}
}

// Min returns the smallest key, its value, and whether the map is non-empty.
func (m *Map[V]) Min() (int64, V, bool) {
	if len(m.keys) == 0 {
		var zero V
		return 0, zero, false
	}
	return m.keys[0], m.values[0], true
}

// PopMin removes and returns the smallest key and its value.
func (m *Map[V]) PopMin() (int64, V, bool) {
	key, value, ok := m.Min()
	if ok {
		m.Delete(key)
	}
	return key, value, ok
}

// Len returns the number of live entries.
func (m *Map[V]) Len() int {
	return len(m.keys)
}

// Keys returns the live keys in ascending order. The caller must not
// mutate the returned slice.
func (m *Map[V]) Keys() []int64 {
	return m.keys
}
