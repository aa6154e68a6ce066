package model

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"strconv"
)

type AddressType string // "IPADDRESS", "NETWORK", "GROUP"

const (
	Host    AddressType = "IPADDRESS"
	Network AddressType = "NETWORK"
	Group   AddressType = "GROUP"
)

// AddressEntry is one validated input line. Hosts are stored as a full-length
// prefix (/32 or /128) so both variants share the same value type.
type AddressEntry struct {
	Raw    string
	Type   AddressType
	Prefix netip.Prefix
}

func NewHost(raw string, addr netip.Addr) AddressEntry {
	return AddressEntry{Raw: raw, Type: Host, Prefix: netip.PrefixFrom(addr, addr.BitLen())}
}

func NewNetwork(raw string, prefix netip.Prefix) AddressEntry {
	return AddressEntry{Raw: raw, Type: Network, Prefix: prefix}
}

func (e AddressEntry) IsHost() bool {
	return e.Type == Host
}

// Value is the text Security Director keeps in the ip-address field:
// the bare address for hosts, CIDR notation for networks.
func (e AddressEntry) Value() string {
	if e.IsHost() {
		return e.Prefix.Addr().String()
	}
	return e.Prefix.String()
}

// Version returns "IPV4" or "IPV6".
func (e AddressEntry) Version() string {
	if e.Prefix.Addr().Is4() {
		return "IPV4"
	}
	return "IPV6"
}

// opaque is a server-assigned value. It is written back in the JSON form it
// was read in: numbers stay numbers and strings stay strings, whatever they
// contain.
type opaque struct {
	text   string
	number bool
}

func (o opaque) String() string {
	return o.text
}

func (o opaque) IsZero() bool {
	return o == opaque{}
}

func (o opaque) MarshalJSON() ([]byte, error) {
	if o.number {
		return []byte(o.text), nil
	}
	return json.Marshal(o.text)
}

func (o *opaque) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = opaque{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = opaque{text: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*o = opaque{text: n.String(), number: true}
	return nil
}

// ObjectID is an identifier assigned by Security Director.
type ObjectID struct {
	opaque
}

// NewObjectID returns an id that is sent as a JSON string.
func NewObjectID(text string) ObjectID {
	return ObjectID{opaque{text: text}}
}

// NumericObjectID returns an id that is sent as a JSON number.
func NumericObjectID(n int64) ObjectID {
	return ObjectID{opaque{text: strconv.FormatInt(n, 10), number: true}}
}

// EditVersion is the optimistic concurrency token of an address group.
type EditVersion struct {
	opaque
}

func NumericEditVersion(n int64) EditVersion {
	return EditVersion{opaque{text: strconv.FormatInt(n, 10), number: true}}
}

type AddressObjectRef struct {
	ID   ObjectID
	Type AddressType
}

// GroupSnapshot is the state of an address group as read right before an update.
type GroupSnapshot struct {
	ID          ObjectID
	Name        string
	Description string
	EditVersion EditVersion
	Members     []ObjectID
}

type ReconciliationResult struct {
	Merged        []ObjectID
	Added         []ObjectID
	OverThreshold bool
}

type EntryStatus string

const (
	StatusExisting EntryStatus = "existing"
	StatusCreated  EntryStatus = "created"
	StatusPlanned  EntryStatus = "planned" // would be created, dry run
)

type EntryOutcome struct {
	Entry    AddressEntry
	ID       ObjectID
	Status   EntryStatus
	Warnings []string
}

type BadEntry struct {
	Line   string
	Reason string
}

type SyncReport struct {
	Group           string
	GroupID         ObjectID
	Entries         []EntryOutcome
	BadEntries      []BadEntry
	ExistingMembers int
	Result          ReconciliationResult
	DryRun          bool
	Updated         bool
}

// Count returns the number of entries with the given status.
func (r *SyncReport) Count(status EntryStatus) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// AddressSummary is one row of the address object listing. Description is
// nil when the object has no description field at all.
type AddressSummary struct {
	ID          ObjectID
	Name        string
	Type        AddressType
	IPAddress   string
	Description *string
}
