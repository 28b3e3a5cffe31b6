// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import "github.com/rivo/uniseg"

// GraphemeLen returns the number of user-perceived characters (Unicode
// extended grapheme clusters) in s.
func GraphemeLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// graphemeCountBytes counts grapheme clusters in b, stopping once the count
// exceeds limit. A negative limit counts everything.
func graphemeCountBytes(b []byte, limit int) int {
	n := 0
	state := -1
	for len(b) > 0 {
		_, b, _, state = uniseg.FirstGraphemeCluster(b, state)
		n++
		if limit >= 0 && n > limit {
			return n
		}
	}
	return n
}
