package engine

import (
	"context"
	"strings"

	"sd-address-tools/internal/model"
)

// MissingDescription stands in for objects that have no description field,
// so searching for it lists them.
const MissingDescription = "Not Present"

type AddressLister interface {
	ListAddresses(ctx context.Context) ([]model.AddressSummary, error)
}

// MatchDescriptions returns the objects whose description contains term,
// ignoring case. Listing order is kept.
func MatchDescriptions(addrs []model.AddressSummary, term string) []model.AddressSummary {
	needle := strings.ToLower(term)
	var matches []model.AddressSummary
	for _, a := range addrs {
		desc := MissingDescription
		if a.Description != nil {
			desc = *a.Description
		}
		if strings.Contains(strings.ToLower(desc), needle) {
			matches = append(matches, a)
		}
	}
	return matches
}

func SearchDescriptions(ctx context.Context, lister AddressLister, term string) ([]model.AddressSummary, error) {
	addrs, err := lister.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	return MatchDescriptions(addrs, term), nil
}
