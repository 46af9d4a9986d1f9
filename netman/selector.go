package netman

import "github.com/tickerhw/wifid/wifi"

// Score combines administrative priority with observed signal. The factor
// keeps priority dominant: transient signal fluctuation must never override
// an operator's ordering, but among equal priorities the strongest wins.
func Score(priority, signal int) int {
	return priority*100 + signal
}

// Select returns the best known network to attempt given the latest scan,
// or false when no auto-connect-eligible known network is in the air.
// Pure function: identical inputs always yield the identical choice.
func Select(known []KnownNetwork, observed []wifi.ObservedNetwork) (KnownNetwork, bool) {
	var best KnownNetwork
	bestScore := 0
	found := false

	for _, kn := range known {
		if !kn.AutoConnect {
			continue
		}
		for _, obs := range observed {
			if obs.Name != kn.Name {
				continue
			}
			score := Score(kn.Priority, obs.Signal)
			if !found || score > bestScore || (score == bestScore && kn.Name < best.Name) {
				best = kn
				bestScore = score
				found = true
			}
			// Scan output is sorted strongest-first, so the first
			// occurrence of a name is its best reading.
			break
		}
	}

	return best, found
}
