package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"sd-address-tools/internal/model"
)

var (
	ErrHostBitsSet    = errors.New("has host bits set")
	ErrZoneNotAllowed = errors.New("zoned addresses are not allowed")
)

// EntryError describes an input line that is not a valid address or network.
type EntryError struct {
	Line string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("invalid entry %q: %v", e.Line, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ParseBlocklist returns the trimmed lines of r, skipping blank lines and
// lines starting with '#'.
func ParseBlocklist(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading blocklist: %w", err)
	}
	return lines, nil
}

// ParseEntry classifies a single line. A '/' makes it a network, which must
// be given by its network address; anything else must be a plain IPv4 or
// IPv6 address.
func ParseEntry(line string) (model.AddressEntry, error) {
	line = strings.TrimSpace(line)

	if strings.Contains(line, "/") {
		prefix, err := netip.ParsePrefix(line)
		if err != nil {
			return model.AddressEntry{}, &EntryError{Line: line, Err: err}
		}
		if prefix != prefix.Masked() {
			return model.AddressEntry{}, &EntryError{Line: line, Err: ErrHostBitsSet}
		}
		return model.NewNetwork(line, prefix), nil
	}

	addr, err := netip.ParseAddr(line)
	if err != nil {
		return model.AddressEntry{}, &EntryError{Line: line, Err: err}
	}
	if addr.Zone() != "" {
		return model.AddressEntry{}, &EntryError{Line: line, Err: ErrZoneNotAllowed}
	}
	return model.NewHost(line, addr), nil
}

// ClassifyLines parses every line, splitting valid entries from rejected ones.
// Input order is kept in both results.
func ClassifyLines(lines []string) ([]model.AddressEntry, []model.BadEntry) {
	var entries []model.AddressEntry
	var bad []model.BadEntry
	for _, line := range lines {
		entry, err := ParseEntry(line)
		if err != nil {
			reason := err.Error()
			var entryErr *EntryError
			if errors.As(err, &entryErr) {
				reason = entryErr.Err.Error()
			}
			bad = append(bad, model.BadEntry{Line: line, Reason: reason})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, bad
}
