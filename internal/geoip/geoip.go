// Package geoip wraps the MaxMind reader behind a resolver that degrades to
// null lookups when no database is configured or a lookup fails.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps client IPs to country and city. The zero value (and a
// Resolver opened with an empty path) resolves everything to nulls, so
// analytics keep flowing without a database file.
type Resolver struct {
	db *geoip2.Reader
}

// Open loads the database at path. An empty path returns a null resolver.
func Open(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Resolver{db: db}, nil
}

// Enabled reports whether lookups can return data.
func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

// Lookup returns the ISO country code and city name for an IP. Every failure
// mode (no database, unparseable IP, lookup error, unknown location) returns
// nils; geolocation is never allowed to fail a click.
func (r *Resolver) Lookup(ip string) (countryCode, city *string) {
	if !r.Enabled() {
		return nil, nil
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, nil
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return nil, nil
	}

	if record.Country.IsoCode != "" {
		code := record.Country.IsoCode
		countryCode = &code
	}
	if name, ok := record.City.Names["en"]; ok && name != "" {
		city = &name
	}
	return countryCode, city
}

// Close releases the underlying reader.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
