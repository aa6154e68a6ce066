package engine

import (
	"context"
	"errors"
	"testing"

	"sd-address-tools/internal/model"
)

type staticLister struct {
	addrs []model.AddressSummary
	err   error
}

func (l staticLister) ListAddresses(ctx context.Context) ([]model.AddressSummary, error) {
	return l.addrs, l.err
}

func strPtr(s string) *string {
	return &s
}

func TestMatchDescriptionsIsCaseInsensitive(t *testing.T) {
	addrs := []model.AddressSummary{
		{Name: "a", Description: strPtr("SIRT block 12Oct21")},
		{Name: "b", Description: strPtr("web servers")},
		{Name: "c", Description: strPtr("sirt BLOCK 23oct21")},
	}

	matches := MatchDescriptions(addrs, "sirt block")
	if len(matches) != 2 || matches[0].Name != "a" || matches[1].Name != "c" {
		t.Fatalf("expected [a c], got %#v", matches)
	}
}

func TestMatchDescriptionsTreatsMissingAsNotPresent(t *testing.T) {
	addrs := []model.AddressSummary{
		{Name: "no-desc"},
		{Name: "empty-desc", Description: strPtr("")},
	}

	matches := MatchDescriptions(addrs, "not present")
	if len(matches) != 1 || matches[0].Name != "no-desc" {
		t.Fatalf("expected only the object without description, got %#v", matches)
	}
}

func TestMatchDescriptionsEmptyTermMatchesAll(t *testing.T) {
	addrs := []model.AddressSummary{{Name: "a"}, {Name: "b", Description: strPtr("x")}}
	if got := MatchDescriptions(addrs, ""); len(got) != 2 {
		t.Fatalf("expected empty term to match everything, got %d", len(got))
	}
}

func TestSearchDescriptionsPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := SearchDescriptions(context.Background(), staticLister{err: boom}, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected lister error, got %v", err)
	}

	got, err := SearchDescriptions(context.Background(), staticLister{addrs: []model.AddressSummary{
		{Name: "hit", Description: strPtr("Blocklist entry added 01Jan2024")},
	}}, "blocklist")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one match, got %#v err=%v", got, err)
	}
}
