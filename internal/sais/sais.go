// Package sais builds suffix arrays with the SA-IS induced sorting algorithm
// (Nong, Zhang and Chan, 2009).
//
// The text must end with a sentinel that is unique and strictly smaller than
// every other symbol; every suffix order is then also a rotation order.
package sais

import (
	"math"

	"github.com/pkg/errors"
)

// ErrTooLarge is returned for texts whose positions do not fit in an int32.
var ErrTooLarge = errors.New("sais: text too large")

// ErrNoSentinel is returned when the last byte is not a unique minimum.
var ErrNoSentinel = errors.New("sais: text must end with a unique smallest byte")

// Sort returns the suffix array of text.
func Sort(text []byte) ([]int32, error) {
	n := len(text)
	if n == 0 {
		return []int32{}, nil
	}
	if n > math.MaxInt32 {
		return nil, ErrTooLarge
	}
	last := text[n-1]
	for _, c := range text[:n-1] {
		if c <= last {
			return nil, ErrNoSentinel
		}
	}
	s := make([]int32, n)
	for i, c := range text {
		s[i] = int32(c)
	}
	sa := make([]int32, n)
	sais(s, sa, 256)
	return sa, nil
}

func buckets(s []int32, bkt []int32, end bool) {
	clear(bkt)
	for _, c := range s {
		bkt[c]++
	}
	var sum int32
	for i, c := range bkt {
		sum += c
		if end {
			bkt[i] = sum
		} else {
			bkt[i] = sum - c
		}
	}
}

func induceL(s, sa []int32, t []bool, bkt []int32) {
	buckets(s, bkt, false)
	for i := range sa {
		if j := sa[i] - 1; j >= 0 && !t[j] {
			sa[bkt[s[j]]] = j
			bkt[s[j]]++
		}
	}
}

func induceS(s, sa []int32, t []bool, bkt []int32) {
	buckets(s, bkt, true)
	for i := len(sa) - 1; i >= 0; i-- {
		if j := sa[i] - 1; j >= 0 && t[j] {
			bkt[s[j]]--
			sa[bkt[s[j]]] = j
		}
	}
}

// sais sorts the suffixes of s, whose symbols lie in [0, k), into sa.
func sais(s, sa []int32, k int) {
	n := len(s)
	if n == 1 {
		sa[0] = 0
		return
	}

	// t[i] marks S-type suffixes.
	t := make([]bool, n)
	t[n-1] = true
	for i := n - 2; i >= 0; i-- {
		t[i] = s[i] < s[i+1] || (s[i] == s[i+1] && t[i+1])
	}
	isLMS := func(i int32) bool {
		return i > 0 && t[i] && !t[i-1]
	}

	// Sort the LMS substrings.
	bkt := make([]int32, k)
	buckets(s, bkt, true)
	for i := range sa {
		sa[i] = -1
	}
	for i := int32(1); i < int32(n); i++ {
		if isLMS(i) {
			bkt[s[i]]--
			sa[bkt[s[i]]] = i
		}
	}
	induceL(s, sa, t, bkt)
	induceS(s, sa, t, bkt)

	// Compact the sorted LMS substrings into the front of sa.
	n1 := 0
	for i := 0; i < n; i++ {
		if isLMS(sa[i]) {
			sa[n1] = sa[i]
			n1++
		}
	}

	// Name them; equal substrings share a name.
	for i := n1; i < n; i++ {
		sa[i] = -1
	}
	name, prev := int32(0), int32(-1)
	for i := 0; i < n1; i++ {
		pos := sa[i]
		diff := prev < 0
		for d := int32(0); !diff; d++ {
			if s[pos+d] != s[prev+d] || t[pos+d] != t[prev+d] {
				diff = true
			} else if d > 0 && (isLMS(pos+d) || isLMS(prev+d)) {
				break
			}
		}
		if diff {
			name++
			prev = pos
		}
		sa[n1+int(pos/2)] = name - 1
	}
	j := n - 1
	for i := n - 1; i >= n1; i-- {
		if sa[i] >= 0 {
			sa[j] = sa[i]
			j--
		}
	}

	// Sort the reduced string, recursing while names repeat.
	s1, sa1 := sa[n-n1:], sa[:n1]
	if int(name) < n1 {
		sais(s1, sa1, int(name))
	} else {
		for i := 0; i < n1; i++ {
			sa1[s1[i]] = int32(i)
		}
	}

	// Induce the full order from the sorted LMS suffixes.
	j = 0
	for i := int32(1); i < int32(n); i++ {
		if isLMS(i) {
			s1[j] = i
			j++
		}
	}
	for i := 0; i < n1; i++ {
		sa1[i] = s1[sa1[i]]
	}
	for i := n1; i < n; i++ {
		sa[i] = -1
	}
	buckets(s, bkt, true)
	for i := n1 - 1; i >= 0; i-- {
		p := sa[i]
		sa[i] = -1
		bkt[s[p]]--
		sa[bkt[s[p]]] = p
	}
	induceL(s, sa, t, bkt)
	induceS(s, sa, t, bkt)
}
