package wifi

import "sort"

// SortObserved sorts scan results in place, strongest signal first.
// Ties are broken by name so that identical scans always produce identical
// orderings, which keeps everything downstream of the scanner deterministic.
func SortObserved(networks []ObservedNetwork) {
	sort.SliceStable(networks, func(i, j int) bool {
		a := networks[i]
		b := networks[j]

		if a.Signal != b.Signal {
			return a.Signal > b.Signal
		}

		return a.Name < b.Name
	})
}
