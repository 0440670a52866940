// Package firewall builds and installs the egress allow-list policy
// inside a running container.
package firewall

import (
	"fmt"
	"regexp"
)

// cidrRe admits IPv4 dotted-quad addresses with an optional prefix
// length. Anything else is rejected before it can reach the rule set.
var cidrRe = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}(/[0-9]{1,2})?$`)

// ValidateEntry checks that entry is a syntactically valid IPv4 address
// or CIDR block.
func ValidateEntry(entry string) error {
	if !cidrRe.MatchString(entry) {
		return fmt.Errorf("invalid address or CIDR: %q", entry)
	}
	return nil
}

// AddressSet is an ordered, deduplicated collection of allow-listed
// IPv4 addresses and CIDR blocks. Every entry passed validation on the
// way in.
type AddressSet struct {
	entries []string
	seen    map[string]bool
}

// NewAddressSet creates an empty set.
func NewAddressSet() *AddressSet {
	return &AddressSet{seen: make(map[string]bool)}
}

// Add validates entry and inserts it, ignoring duplicates.
func (s *AddressSet) Add(entry string) error {
	if err := ValidateEntry(entry); err != nil {
		return err
	}
	if s.seen[entry] {
		return nil
	}
	s.seen[entry] = true
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns the entries in insertion order.
func (s *AddressSet) Entries() []string {
	return s.entries
}

// Len returns the number of entries.
func (s *AddressSet) Len() int {
	return len(s.entries)
}
