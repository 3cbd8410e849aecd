package geo

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
)

// StaticResolver maps CIDR prefixes to fixed labels. It is meant for
// development setups and tests where no MaxMind database is available.
type StaticResolver struct {
	entries []staticEntry
	unknown string
}

type staticEntry struct {
	prefix netip.Prefix
	label  string
}

// NewStaticResolver builds a resolver from CIDR → label pairs. The most
// specific matching prefix wins.
func NewStaticResolver(prefixes map[string]string, unknown string) (*StaticResolver, error) {
	if unknown == "" {
		unknown = DefaultUnknown
	}
	entries := make([]staticEntry, 0, len(prefixes))
	for cidr, label := range prefixes {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("geo: invalid prefix %q: %w", cidr, err)
		}
		if label == "" {
			return nil, fmt.Errorf("geo: empty label for prefix %q", cidr)
		}
		entries = append(entries, staticEntry{prefix: p.Masked(), label: label})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].prefix.Bits() > entries[j].prefix.Bits()
	})
	return &StaticResolver{entries: entries, unknown: unknown}, nil
}

// Resolve returns the label of the longest matching prefix.
func (r *StaticResolver) Resolve(_ context.Context, address string) string {
	if r == nil {
		return DefaultUnknown
	}
	ip := parseAddress(address)
	if ip == nil {
		return r.unknown
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return r.unknown
	}
	addr = addr.Unmap()
	for _, e := range r.entries {
		if e.prefix.Contains(addr) {
			return e.label
		}
	}
	return r.unknown
}

// Unknown resolves every address to a single label.
type Unknown string

// Resolve returns the label itself, or [DefaultUnknown] when empty.
func (u Unknown) Resolve(context.Context, string) string {
	if u == "" {
		return DefaultUnknown
	}
	return string(u)
}
