package utils

import (
	"math"
	"net/netip"

	"go4.org/netipx"
)

// PrefixSize returns the number of addresses in a prefix, saturating at MaxUint64.
func PrefixSize(p netip.Prefix) uint64 {
	host := p.Addr().BitLen() - p.Bits()
	if host >= 64 {
		return math.MaxUint64
	}
	return 1 << host
}

// CoveredBy returns, for every prefix that lies inside a broader prefix of the
// same list, the index of the first such broader prefix.
func CoveredBy(prefixes []netip.Prefix) map[int]int {
	covered := make(map[int]int)
	for i, p := range prefixes {
		for j, q := range prefixes {
			if i == j || q.Bits() >= p.Bits() {
				continue
			}
			if q.Contains(p.Addr()) {
				covered[i] = j
				break
			}
		}
	}
	return covered
}

// Footprint collapses the prefixes into the minimal set of prefixes covering
// the same addresses.
func Footprint(prefixes []netip.Prefix) ([]netip.Prefix, error) {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		b.AddPrefix(p)
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	return set.Prefixes(), nil
}
