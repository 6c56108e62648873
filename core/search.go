package core

import (
	"bytes"
	"sort"
)

// Range is an inclusive range of rows. It is empty when First > Second.
type Range struct {
	First  int64
	Second int64
}

// EmptyRange is the conventional empty range.
var EmptyRange = Range{0, -1}

// Empty reports whether r holds no rows.
func (r Range) Empty() bool {
	return r.First > r.Second
}

// Len returns the number of rows in r.
func (r Range) Len() int64 {
	if r.Empty() {
		return 0
	}
	return r.Second - r.First + 1
}

// column returns the rows whose suffixes start with ch.
func (c *Core) column(ch byte) (Range, bool) {
	idx := c.index[ch]
	if idx < 0 || ch == Sentinel {
		return EmptyRange, false
	}
	return Range{int64(c.colOffsets[idx]), int64(c.colOffsets[idx+1]) - 1}, true
}

// BwdSearch returns the rows whose suffixes start with pattern, narrowing the
// range one byte at a time from the end of the pattern.
func (c *Core) BwdSearch(pattern []byte) Range {
	if len(pattern) == 0 {
		return EmptyRange
	}
	r, ok := c.column(pattern[len(pattern)-1])
	if !ok {
		return EmptyRange
	}
	return c.ContinueBwdSearch(pattern[:len(pattern)-1], r)
}

// ContinueBwdSearch extends r, the rows matching some string s, to the rows
// matching pattern+s.
func (c *Core) ContinueBwdSearch(pattern []byte, r Range) Range {
	for k := len(pattern) - 1; k >= 0 && !r.Empty(); k-- {
		col, ok := c.column(pattern[k])
		if !ok {
			return EmptyRange
		}
		first := c.npa.BinarySearch(uint64(r.First), col.First, col.Second, true)
		second := c.npa.BinarySearch(uint64(r.Second), col.First, col.Second, false)
		r = Range{first, second}
	}
	if r.Empty() {
		return EmptyRange
	}
	return r
}

// Compare compares pattern with the first len(pattern) bytes of the suffix
// at row i. It returns -1, 0 or 1 as pattern sorts before, as a prefix of or
// after the suffix.
func (c *Core) Compare(pattern []byte, i uint64) int {
	return c.CompareAt(pattern, i, 0)
}

// CompareAt is Compare against the suffix at row i with its first offset
// bytes skipped.
func (c *Core) CompareAt(pattern []byte, i uint64, offset int) int {
	for ; offset > 0; offset-- {
		i = c.npa.Lookup(i)
	}
	for j := 0; j < len(pattern); j++ {
		ch := c.alphabet[c.npa.LookupC(i)]
		if pattern[j] < ch {
			return -1
		}
		if pattern[j] > ch {
			return 1
		}
		i = c.npa.Lookup(i)
	}
	return 0
}

// FwdSearch returns the rows whose suffixes start with pattern by binary
// searching the sorted suffixes directly.
func (c *Core) FwdSearch(pattern []byte) Range {
	if len(pattern) == 0 {
		return EmptyRange
	}
	return c.ContinueFwdSearch(pattern, Range{0, int64(c.n) - 1}, 0)
}

// ContinueFwdSearch narrows r, the rows matching a string of length offset,
// to those continuing with pattern.
func (c *Core) ContinueFwdSearch(pattern []byte, r Range, offset int) Range {
	if len(pattern) == 0 || r.Empty() {
		return r
	}
	if bytes.IndexByte(pattern, Sentinel) >= 0 {
		return EmptyRange
	}
	size := int(r.Len())
	lo := sort.Search(size, func(k int) bool {
		return c.CompareAt(pattern, uint64(r.First)+uint64(k), offset) <= 0
	})
	hi := sort.Search(size, func(k int) bool {
		return c.CompareAt(pattern, uint64(r.First)+uint64(k), offset) < 0
	})
	if lo >= hi {
		return EmptyRange
	}
	return Range{r.First + int64(lo), r.First + int64(hi) - 1}
}

// Count returns the number of occurrences of pattern.
func (c *Core) Count(pattern []byte) int64 {
	return c.BwdSearch(pattern).Len()
}

// Search returns the text offsets of every occurrence of pattern, in row
// order.
func (c *Core) Search(pattern []byte) []int64 {
	r := c.BwdSearch(pattern)
	out := make([]int64, 0, r.Len())
	for i := r.First; i <= r.Second; i++ {
		out = append(out, int64(c.sa.Lookup(uint64(i))))
	}
	return out
}
