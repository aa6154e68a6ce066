package sd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sd-address-tools/internal/model"
)

type addressRefs struct {
	Addresses struct {
		Total   int          `json:"total"`
		Address []addressRef `json:"address"`
	} `json:"addresses"`
}

type addressRef struct {
	ID          model.ObjectID    `json:"id"`
	Name        string            `json:"name"`
	AddressType model.AddressType `json:"address-type"`
	IPAddress   string            `json:"ip-address"`
	Description *string           `json:"description"`
}

type newAddress struct {
	Address struct {
		Name           string            `json:"name"`
		Description    string            `json:"description"`
		AddressType    model.AddressType `json:"address-type"`
		AddressVersion string            `json:"address-version"`
		IPAddress      string            `json:"ip-address"`
		HostName       string            `json:"host-name"`
	} `json:"address"`
}

func filterQuery(field, value string) url.Values {
	return url.Values{"filter": {fmt.Sprintf("(%s eq '%s')", field, value)}}
}

func (s *Session) search(ctx context.Context, op string, query url.Values) (*addressRefs, error) {
	var refs addressRefs
	err := s.do(ctx, call{
		op:      op,
		method:  http.MethodGet,
		path:    addressesPath,
		query:   query,
		accept:  addressRefsMediaType,
		failure: ErrRemoteRead,
	}, &refs)
	if err != nil {
		return nil, err
	}
	return &refs, nil
}

// ResolveAddress looks up an address object by its ip-address value. found is
// false when nothing matches. With several matches the first one in server
// order is returned.
func (s *Session) ResolveAddress(ctx context.Context, entry model.AddressEntry) (model.ObjectID, bool, error) {
	refs, err := s.search(ctx, "resolve address", filterQuery("ipAddress", entry.Value()))
	if err != nil {
		return model.ObjectID{}, false, err
	}
	if refs.Addresses.Total < 1 || len(refs.Addresses.Address) == 0 {
		return model.ObjectID{}, false, nil
	}
	return refs.Addresses.Address[0].ID, true, nil
}

// CreateAddress creates a host or network object. The response does not
// include the new id; resolve the entry again to obtain it.
func (s *Session) CreateAddress(ctx context.Context, entry model.AddressEntry, name, description string) error {
	var payload newAddress
	payload.Address.Name = name
	payload.Address.Description = description
	payload.Address.AddressType = entry.Type
	payload.Address.AddressVersion = entry.Version()
	payload.Address.IPAddress = entry.Value()

	err := s.do(ctx, call{
		op:      "create address",
		method:  http.MethodPost,
		path:    addressesPath,
		accept:  addressMediaType,
		content: addressContentType,
		body:    payload,
		failure: ErrRemoteWrite,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create address %s: %w", entry.Value(), err)
	}
	return nil
}

// ListAddresses returns every address object, dynamic addresses included.
func (s *Session) ListAddresses(ctx context.Context) ([]model.AddressSummary, error) {
	refs, err := s.search(ctx, "list addresses", url.Values{"includeDynamicAddresses": {"true"}})
	if err != nil {
		return nil, err
	}

	out := make([]model.AddressSummary, 0, len(refs.Addresses.Address))
	for _, ref := range refs.Addresses.Address {
		out = append(out, model.AddressSummary{
			ID:          ref.ID,
			Name:        ref.Name,
			Type:        ref.AddressType,
			IPAddress:   ref.IPAddress,
			Description: ref.Description,
		})
	}
	return out, nil
}
