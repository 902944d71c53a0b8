package xname

import (
	"golang.org/x/exp/slices"
)

// Matches partitions a set of filter xnames and a set of element xnames by
// the containment relation. The four sets are complete - every filter lands
// in exactly one of UsedFilters/UnusedFilters and every element in exactly
// one of Matched/Unmatched.
type Matches struct {
	// UsedFilters are filters that contained at least one element.
	UsedFilters []XName
	// UnusedFilters are filters that contained no element.
	UnusedFilters []XName
	// Matched are elements contained by at least one filter.
	Matched []XName
	// Unmatched are elements contained by no filter.
	Unmatched []XName
}

// Partition tests every filter against every element and splits both sets by
// whether they participated in a containment match. An element may match more
// than one filter; it is still reported once. Inputs are treated as sets -
// duplicates under token equality collapse. Both sets are expected to be
// topology sized, so the pairwise scan is fine.
func Partition(filters, elems []XName) Matches {
	used := map[string]XName{}
	unused := asSet(filters)
	matched := map[string]XName{}
	unmatched := asSet(elems)

	for _, elem := range elems {
		for _, filter := range filters {
			if !filter.Contains(elem) {
				continue
			}

			used[filter.Canonical()] = filter
			delete(unused, filter.Canonical())
			matched[elem.Canonical()] = elem
			delete(unmatched, elem.Canonical())
		}
	}

	return Matches{
		UsedFilters:   sorted(used),
		UnusedFilters: sorted(unused),
		Matched:       sorted(matched),
		Unmatched:     sorted(unmatched),
	}
}

func asSet(xnames []XName) map[string]XName {
	set := make(map[string]XName, len(xnames))
	for _, x := range xnames {
		set[x.Canonical()] = x
	}

	return set
}

func sorted(set map[string]XName) []XName {
	xnames := make([]XName, 0, len(set))
	for _, x := range set {
		xnames = append(xnames, x)
	}

	slices.SortFunc(xnames, func(a, b XName) int { return a.Compare(b) })

	return xnames
}
