package reserved

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"net/netip"
	"strings"

	_ "embed"

	"go4.org/netipx"
)

//go:embed reserved_networks.csv
var reservedNetworksData string

// Network is a special-purpose block from the IANA registries.
type Network struct {
	Prefix    netip.Prefix
	Name      string
	Reference string
}

var (
	registry []Network
	set      *netipx.IPSet
)

func init() {
	reader := csv.NewReader(bytes.NewBufferString(reservedNetworksData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded reserved_networks.csv: %v", err)
	}

	var b netipx.IPSetBuilder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded reserved_networks.csv: %v", err)
		}
		if len(record) < 3 {
			continue
		}

		prefix, err := netip.ParsePrefix(strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}
		registry = append(registry, Network{
			Prefix:    prefix.Masked(),
			Name:      strings.TrimSpace(record[1]),
			Reference: strings.TrimSpace(record[2]),
		})
		b.AddPrefix(prefix)
	}

	s, err := b.IPSet()
	if err != nil {
		log.Fatalf("Failed to build reserved network set: %v", err)
	}
	set = s
}

// Lookup returns the special-purpose networks that overlap p.
func Lookup(p netip.Prefix) ([]Network, bool) {
	if !set.OverlapsPrefix(p) {
		return nil, false
	}
	var matches []Network
	for _, n := range registry {
		if n.Prefix.Overlaps(p) {
			matches = append(matches, n)
		}
	}
	return matches, len(matches) > 0
}

// All returns a copy of the registry.
func All() []Network {
	out := make([]Network, len(registry))
	copy(out, registry)
	return out
}
