// Package stats has small generic reductions over numeric slices.
package stats

import (
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

func Sum[S ~[]E, E Number](s S) E {
	var sum E
	for _, e := range s {
		sum += e
	}
	return sum
}

// Mean returns 0 for an empty slice.
func Mean[S ~[]E, E constraints.Float](s S) E {
	if len(s) == 0 {
		return 0
	}
	return Sum(s) / E(len(s))
}

// Min returns the zero value and false for an empty slice.
func Min[S ~[]E, E constraints.Ordered](s S) (E, bool) {
	var m E
	if len(s) == 0 {
		return m, false
	}
	m = s[0]
	for _, e := range s[1:] {
		if e < m {
			m = e
		}
	}
	return m, true
}

func Max[S ~[]E, E constraints.Ordered](s S) (E, bool) {
	var m E
	if len(s) == 0 {
		return m, false
	}
	m = s[0]
	for _, e := range s[1:] {
		if e > m {
			m = e
		}
	}
	return m, true
}

func Count[S ~[]E, E any](s S, pred func(E) bool) int {
	n := 0
	for _, e := range s {
		if pred(e) {
			n++
		}
	}
	return n
}

func Map[S ~[]E, E any, R any](s S, f func(E) R) []R {
	out := make([]R, len(s))
	for i, e := range s {
		out[i] = f(e)
	}
	return out
}

func Clamp[E constraints.Ordered](v, lo, hi E) E {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
