package symbit

import "math/bits"

// MaxShares is the largest number of shares a ShareSet can represent. It
// matches the "bitmask up to d=128" design note: two uint64 words give
// O(1) union, membership and comparison for any d in that range. Circuits
// declaring more shares than this are rejected by gadget validation rather
// than silently truncated.
const MaxShares = 128

// ShareSet is a finite subset of {0, ..., d-1}, the indices of the secret
// shares a symbolic bit may depend on. The zero value is the empty set.
type ShareSet struct {
	lo, hi uint64
}

// Singleton returns the set containing only share index i.
func Singleton(i int) ShareSet {
	var s ShareSet
	s.add(i)
	return s
}

func (s *ShareSet) add(i int) {
	if i < 64 {
		s.lo |= 1 << uint(i)
	} else {
		s.hi |= 1 << uint(i-64)
	}
}

// Full returns the set {0, ..., d-1}, used to degrade a port to worst-case
// sensitivity when its activity cannot be trusted.
func Full(d int) ShareSet {
	var s ShareSet
	for i := 0; i < d; i++ {
		s.add(i)
	}
	return s
}

// Union returns the set union of a and b.
func Union(a, b ShareSet) ShareSet {
	return ShareSet{lo: a.lo | b.lo, hi: a.hi | b.hi}
}

// UnionAll unions an arbitrary number of sets; useful for the glitch
// sensitivity rule, which unions every input of a gate unconditionally.
func UnionAll(sets ...ShareSet) ShareSet {
	var u ShareSet
	for _, s := range sets {
		u = Union(u, s)
	}
	return u
}

// Contains reports whether i is a member of s.
func (s ShareSet) Contains(i int) bool {
	if i < 64 {
		return s.lo&(1<<uint(i)) != 0
	}
	return s.hi&(1<<uint(i-64)) != 0
}

// IsSubsetOf reports whether every member of s is also a member of t.
func (s ShareSet) IsSubsetOf(t ShareSet) bool {
	return s.lo&^t.lo == 0 && s.hi&^t.hi == 0
}

// Equal reports whether s and t have the same members.
func (s ShareSet) Equal(t ShareSet) bool {
	return s.lo == t.lo && s.hi == t.hi
}

// Empty reports whether s has no members.
func (s ShareSet) Empty() bool {
	return s.lo == 0 && s.hi == 0
}

// Size returns the number of members of s.
func (s ShareSet) Size() int {
	return bits.OnesCount64(s.lo) + bits.OnesCount64(s.hi)
}

// Extra returns the members of s that are not members of allowed, used to
// report the offending share indices of a leakage violation.
func (s ShareSet) Extra(allowed ShareSet) []int {
	var extra []int
	diffLo, diffHi := s.lo&^allowed.lo, s.hi&^allowed.hi
	for i := 0; i < 64; i++ {
		if diffLo&(1<<uint(i)) != 0 {
			extra = append(extra, i)
		}
	}
	for i := 0; i < 64; i++ {
		if diffHi&(1<<uint(i)) != 0 {
			extra = append(extra, i+64)
		}
	}
	return extra
}
