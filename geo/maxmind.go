package geo

import (
	"context"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// DefaultUnknown is the label returned when a lookup cannot produce a city.
const DefaultUnknown = "Unknown"

// MaxMindResolver looks addresses up in a MaxMind City database.
//
// The database is opened for each lookup and closed before Resolve returns, so
// replacing the file on disk takes effect on the next request.
type MaxMindResolver struct {
	path    string
	unknown string
	open    func(path string) (cityReader, error)
}

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// NewMaxMindResolver returns a resolver for the database at path. An empty
// unknown label defaults to [DefaultUnknown].
func NewMaxMindResolver(path, unknown string) *MaxMindResolver {
	if unknown == "" {
		unknown = DefaultUnknown
	}
	return &MaxMindResolver{
		path:    path,
		unknown: unknown,
		open: func(path string) (cityReader, error) {
			return geoip2.Open(path)
		},
	}
}

// Resolve returns the English city name for address, or the unknown label.
func (r *MaxMindResolver) Resolve(ctx context.Context, address string) string {
	if r == nil {
		return DefaultUnknown
	}
	if r.path == "" || ctx.Err() != nil {
		return r.unknown
	}
	ip := parseAddress(address)
	if ip == nil {
		return r.unknown
	}

	db, err := r.open(r.path)
	if err != nil {
		return r.unknown
	}
	defer db.Close()

	record, err := db.City(ip)
	if err != nil || record == nil {
		return r.unknown
	}
	name := strings.TrimSpace(record.City.Names["en"])
	if name == "" {
		return r.unknown
	}
	return name
}

// parseAddress accepts a bare IP or host:port form.
func parseAddress(address string) net.IP {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		address = host
	}
	return net.ParseIP(strings.Trim(address, "[]"))
}
