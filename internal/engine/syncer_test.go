package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"sd-address-tools/internal/model"
)

var errGroupMissing = errors.New("group missing")

// fakeService is an in-memory AddressService that records every call.
type fakeService struct {
	groupName string
	groupID   model.ObjectID
	members   []model.ObjectID
	version   int

	addresses map[string]model.ObjectID
	nextID    int
	calls     []string
	created   map[string]string // value -> name

	createErr error
	updateErr error
	lost      bool // creation succeeds but the object never shows up
	updated   []model.ObjectID
}

func newFakeService(group string) *fakeService {
	return &fakeService{
		groupName: group,
		groupID:   model.NewObjectID("500"),
		version:   7,
		addresses: make(map[string]model.ObjectID),
		created:   make(map[string]string),
		nextID:    1000,
	}
}

func (f *fakeService) FindGroup(ctx context.Context, name string) (model.ObjectID, error) {
	f.calls = append(f.calls, "find "+name)
	if name != f.groupName {
		return model.ObjectID{}, errGroupMissing
	}
	return f.groupID, nil
}

func (f *fakeService) ResolveAddress(ctx context.Context, entry model.AddressEntry) (model.ObjectID, bool, error) {
	f.calls = append(f.calls, "resolve "+entry.Value())
	id, ok := f.addresses[entry.Value()]
	return id, ok, nil
}

func (f *fakeService) CreateAddress(ctx context.Context, entry model.AddressEntry, name, description string) error {
	f.calls = append(f.calls, "create "+entry.Value())
	if f.createErr != nil {
		return f.createErr
	}
	f.created[entry.Value()] = name
	if !f.lost {
		f.nextID++
		f.addresses[entry.Value()] = model.NumericObjectID(int64(f.nextID))
	}
	return nil
}

func (f *fakeService) GetGroup(ctx context.Context, id model.ObjectID) (*model.GroupSnapshot, error) {
	f.calls = append(f.calls, "get "+id.String())
	return &model.GroupSnapshot{
		ID:          id,
		Name:        f.groupName,
		EditVersion: model.NumericEditVersion(int64(f.version)),
		Members:     append([]model.ObjectID(nil), f.members...),
	}, nil
}

func (f *fakeService) UpdateGroup(ctx context.Context, group *model.GroupSnapshot, members []model.ObjectID) error {
	f.calls = append(f.calls, "update "+group.ID.String()+" v"+group.EditVersion.String())
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = members
	f.members = members
	f.version++
	return nil
}

func (f *fakeService) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestSyncer(t *testing.T, svc AddressService, opts SyncOptions) *Syncer {
	t.Helper()
	if opts.Group == "" {
		opts.Group = "SIRT-Block-List"
	}
	tmpl, err := NewObjectTemplates("", "", time.Date(2021, time.October, 23, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("failed to build templates: %v", err)
	}
	opts.Templates = tmpl
	return NewSyncer(svc, opts, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestSyncCreatesMissingAndUpdatesGroup(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.addresses["192.0.2.1"] = model.NewObjectID("11")
	svc.members = ids("10", "11")

	report, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(),
		[]string{"192.0.2.1", "198.51.100.0/24", "not-an-ip", "2001:db8::5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Entries) != 3 {
		t.Fatalf("expected 3 processed entries, got %d", len(report.Entries))
	}
	if report.Count(model.StatusExisting) != 1 || report.Count(model.StatusCreated) != 2 {
		t.Fatalf("unexpected status counts: %#v", report.Entries)
	}
	if len(report.BadEntries) != 1 || report.BadEntries[0].Line != "not-an-ip" {
		t.Fatalf("expected not-an-ip as bad entry, got %#v", report.BadEntries)
	}
	if !report.Updated || report.ExistingMembers != 2 {
		t.Fatalf("expected update with 2 existing members, got %#v", report)
	}

	want := []model.ObjectID{model.NewObjectID("10"), model.NewObjectID("11"), model.NumericObjectID(1001), model.NumericObjectID(1002)}
	if !reflect.DeepEqual(svc.updated, want) {
		t.Fatalf("expected members %v, got %v", want, svc.updated)
	}
	if svc.count("update 500 v7") != 1 {
		t.Fatalf("expected a single update with the fetched edit-version, calls=%v", svc.calls)
	}
	if svc.created["198.51.100.0/24"] != "BL-198.51.100.0_24" {
		t.Fatalf("unexpected object name %q", svc.created["198.51.100.0/24"])
	}
}

func TestNewSyncerDefaultTemplates(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	s := NewSyncer(svc, SyncOptions{Group: "SIRT-Block-List"}, nil)
	if s.opts.Templates == nil || s.opts.MemberLimit != DefaultMemberLimit {
		t.Fatalf("expected defaults to be filled, got %#v", s.opts)
	}

	if _, err := s.Sync(context.Background(), []string{"192.0.2.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.created["192.0.2.1"] != "BL-192.0.2.1" {
		t.Fatalf("expected default name, got %q", svc.created["192.0.2.1"])
	}
}

func TestSyncResolvesAgainAfterCreate(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")

	_, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"203.0.113.7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"find SIRT-Block-List", "resolve 203.0.113.7", "create 203.0.113.7", "resolve 203.0.113.7", "get 500", "update 500 v7"}
	if !reflect.DeepEqual(svc.calls, want) {
		t.Fatalf("unexpected call order:\n got %v\nwant %v", svc.calls, want)
	}
}

func TestSyncGroupNotFoundHasNoSideEffects(t *testing.T) {
	svc := newFakeService("other-group")

	report, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"192.0.2.1", "192.0.2.2"})
	if !errors.Is(err, errGroupMissing) {
		t.Fatalf("expected group lookup error, got %v", err)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected only the group lookup, got %v", svc.calls)
	}
	if len(report.Entries) != 0 {
		t.Fatalf("expected no processed entries, got %#v", report.Entries)
	}
}

func TestSyncCreateFailureAbortsRun(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.createErr = errors.New("remote write failed")

	_, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"192.0.2.1", "192.0.2.2"})
	if !errors.Is(err, svc.createErr) {
		t.Fatalf("expected create error, got %v", err)
	}
	if svc.count("create") != 1 || svc.count("get") != 0 || svc.count("update") != 0 {
		t.Fatalf("expected the run to stop at the first failed create, calls=%v", svc.calls)
	}
}

func TestSyncUnresolvableAfterCreate(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.lost = true

	_, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"192.0.2.1"})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestSyncConflictIsNotRetried(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.updateErr = errors.New("edit-version conflict")

	_, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"192.0.2.1"})
	if !errors.Is(err, svc.updateErr) {
		t.Fatalf("expected update error, got %v", err)
	}
	if svc.count("update") != 1 || svc.count("get") != 1 {
		t.Fatalf("expected exactly one read and one write, calls=%v", svc.calls)
	}
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.addresses["192.0.2.1"] = model.NewObjectID("11")

	report, err := newTestSyncer(t, svc, SyncOptions{DryRun: true}).Sync(context.Background(), []string{"192.0.2.1", "192.0.2.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.count("create") != 0 || svc.count("update") != 0 {
		t.Fatalf("dry run must not write, calls=%v", svc.calls)
	}
	if report.Count(model.StatusPlanned) != 1 || report.Updated {
		t.Fatalf("unexpected dry run report: %#v", report)
	}
	if !reflect.DeepEqual(report.Result.Merged, ids("11")) {
		t.Fatalf("planned entries must not appear in the merged list, got %v", report.Result.Merged)
	}
}

func TestSyncSkipsUpdateWhenNothingAdded(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.addresses["192.0.2.1"] = model.NewObjectID("11")
	svc.members = ids("11")

	report, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(), []string{"192.0.2.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Updated || svc.count("update") != 0 {
		t.Fatalf("expected no update, calls=%v", svc.calls)
	}
}

func TestSyncFlagsThresholdWithoutStopping(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")
	svc.members = ids("1", "2")

	report, err := newTestSyncer(t, svc, SyncOptions{MemberLimit: 3}).Sync(context.Background(), []string{"192.0.2.9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Result.OverThreshold || !report.Updated {
		t.Fatalf("expected advisory threshold flag and a completed update, got %#v", report.Result)
	}
}

func TestSyncAttachesWarnings(t *testing.T) {
	svc := newFakeService("SIRT-Block-List")

	report, err := newTestSyncer(t, svc, SyncOptions{}).Sync(context.Background(),
		[]string{"10.1.2.3", "203.0.113.0/24", "203.0.113.8", "8.8.4.4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Entries[0].Warnings) == 0 || !strings.Contains(report.Entries[0].Warnings[0], "Private-Use") {
		t.Fatalf("expected private-use warning, got %v", report.Entries[0].Warnings)
	}
	found := false
	for _, w := range report.Entries[2].Warnings {
		if w == "already covered by 203.0.113.0/24" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected coverage warning, got %v", report.Entries[2].Warnings)
	}
	if len(report.Entries[3].Warnings) != 0 {
		t.Fatalf("expected no warnings for a public host, got %v", report.Entries[3].Warnings)
	}
}
