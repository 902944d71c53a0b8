package xname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func xnames(strs ...string) []XName {
	out := make([]XName, 0, len(strs))
	for _, s := range strs {
		out = append(out, New(s))
	}

	return out
}

func canonicals(xs []XName) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		out = append(out, x.Canonical())
	}

	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name          string
		filters       []string
		elems         []string
		usedFilters   []string
		unusedFilters []string
		matched       []string
		unmatched     []string
	}{
		{
			"chassis filter matches its nodes",
			[]string{"x1000c0", "x1000c1"},
			[]string{"x1000c0s0b0n0", "x1000c0s1b0n0", "x1000c2s0b0n0"},
			[]string{"x1000c0"},
			[]string{"x1000c1"},
			[]string{"x1000c0s0b0n0", "x1000c0s1b0n0"},
			[]string{"x1000c2s0b0n0"},
		},
		{
			"element may match several filters",
			[]string{"x1000", "x1000c0"},
			[]string{"x1000c0s0b0n0"},
			[]string{"x1000", "x1000c0"},
			nil,
			[]string{"x1000c0s0b0n0"},
			nil,
		},
		{
			"exact match counts",
			[]string{"x1000c0s0b0n0"},
			[]string{"x1000c0s0b0n0"},
			[]string{"x1000c0s0b0n0"},
			nil,
			[]string{"x1000c0s0b0n0"},
			nil,
		},
		{
			"leading zeros collapse to one set member",
			[]string{"x0001", "x1"},
			[]string{"x1c0"},
			[]string{"x1"},
			nil,
			[]string{"x1c0"},
			nil,
		},
		{
			"no filters",
			nil,
			[]string{"x1c0"},
			nil,
			nil,
			nil,
			[]string{"x1c0"},
		},
		{
			"no elements",
			[]string{"x1c0"},
			nil,
			nil,
			[]string{"x1c0"},
			nil,
			nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := Partition(xnames(tc.filters...), xnames(tc.elems...))

			assert.Equal(t, tc.usedFilters, nilIfEmpty(canonicals(m.UsedFilters)))
			assert.Equal(t, tc.unusedFilters, nilIfEmpty(canonicals(m.UnusedFilters)))
			assert.Equal(t, tc.matched, nilIfEmpty(canonicals(m.Matched)))
			assert.Equal(t, tc.unmatched, nilIfEmpty(canonicals(m.Unmatched)))
		})
	}
}

func nilIfEmpty(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}

	return strs
}

func TestPartitionCompleteness(t *testing.T) {
	filters := xnames("x1000", "x2000c0", "x3000c0s1", "x9999")
	elems := xnames("x1000c0s0b0n0", "x2000c0s1b0n0", "x3000c0s2b0n0", "x4000c0s0b0n0")

	m := Partition(filters, elems)

	assert.Len(t, append(m.UsedFilters, m.UnusedFilters...), len(filters))
	assert.Len(t, append(m.Matched, m.Unmatched...), len(elems))

	for _, f := range m.UsedFilters {
		assert.NotContains(t, canonicals(m.UnusedFilters), f.Canonical())
	}

	for _, e := range m.Matched {
		assert.NotContains(t, canonicals(m.Unmatched), e.Canonical())
	}
}
