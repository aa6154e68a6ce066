package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"time"

	"sd-address-tools/internal/model"
	"sd-address-tools/internal/parser"
	"sd-address-tools/internal/utils"
	"sd-address-tools/pkg/reserved"
)

// ErrUnresolved is returned when an address was created but a lookup right
// after the creation still does not find it.
var ErrUnresolved = errors.New("created address cannot be resolved")

// AddressService is the part of the Security Director API the syncer needs.
// *sd.Session implements it.
type AddressService interface {
	FindGroup(ctx context.Context, name string) (model.ObjectID, error)
	ResolveAddress(ctx context.Context, entry model.AddressEntry) (model.ObjectID, bool, error)
	CreateAddress(ctx context.Context, entry model.AddressEntry, name, description string) error
	GetGroup(ctx context.Context, id model.ObjectID) (*model.GroupSnapshot, error)
	UpdateGroup(ctx context.Context, group *model.GroupSnapshot, members []model.ObjectID) error
}

type SyncOptions struct {
	Group       string
	MemberLimit int
	DryRun      bool
	Templates   *ObjectTemplates
}

// Syncer adds the addresses of a blocklist to an address group.
type Syncer struct {
	svc    AddressService
	opts   SyncOptions
	logger *slog.Logger
}

func NewSyncer(svc AddressService, opts SyncOptions, logger *slog.Logger) *Syncer {
	if opts.MemberLimit <= 0 {
		opts.MemberLimit = DefaultMemberLimit
	}
	if opts.Templates == nil {
		opts.Templates = MustNewObjectTemplates(DefaultNameTemplate, DefaultDescriptionTemplate, time.Now())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{svc: svc, opts: opts, logger: logger}
}

// Sync runs one reconciliation for the given raw lines. The returned report
// is filled as far as the run got, also when an error is returned.
//
// Order of operations: the group is looked up first so that a missing group
// aborts before any address is touched; then every valid entry is resolved
// (and created when missing); then the group is read and written back once.
func (s *Syncer) Sync(ctx context.Context, lines []string) (*model.SyncReport, error) {
	report := &model.SyncReport{Group: s.opts.Group, DryRun: s.opts.DryRun}

	groupID, err := s.svc.FindGroup(ctx, s.opts.Group)
	if err != nil {
		return report, err
	}
	report.GroupID = groupID
	s.logger.Info("Found address group", "group", s.opts.Group, "id", groupID)

	entries, bad := parser.ClassifyLines(lines)
	report.BadEntries = bad
	for _, b := range bad {
		s.logger.Warn("Skipping malformed entry", "line", b.Line, "reason", b.Reason)
	}

	prefixes := make([]netip.Prefix, len(entries))
	for i, e := range entries {
		prefixes[i] = e.Prefix
	}
	warnings := entryWarnings(entries, prefixes)
	if fp, err := utils.Footprint(prefixes); err == nil {
		s.logger.Debug("Blocklist footprint", "prefixes", len(fp), "addresses", footprintSize(fp))
	}

	var newIDs []model.ObjectID
	for i, entry := range entries {
		outcome, err := s.processEntry(ctx, entry)
		outcome.Warnings = warnings[i]
		for _, w := range outcome.Warnings {
			s.logger.Warn("Entry warning", "address", entry.Value(), "warning", w)
		}
		if err != nil {
			return report, err
		}
		report.Entries = append(report.Entries, outcome)
		if !outcome.ID.IsZero() {
			newIDs = append(newIDs, outcome.ID)
		}
	}
	s.logger.Info("Processed entries",
		"valid", len(entries),
		"bad", len(bad),
		"created", report.Count(model.StatusCreated),
		"existing", report.Count(model.StatusExisting),
		"planned", report.Count(model.StatusPlanned))

	group, err := s.svc.GetGroup(ctx, groupID)
	if err != nil {
		return report, fmt.Errorf("failed to read group %s: %w", s.opts.Group, err)
	}
	if group.Name == "" {
		group.Name = s.opts.Group
	}
	report.ExistingMembers = len(group.Members)

	report.Result = Reconcile(group.Members, newIDs, s.opts.MemberLimit)
	s.logger.Info("Reconciled group members",
		"existing", len(group.Members),
		"added", len(report.Result.Added),
		"merged", len(report.Result.Merged),
		"edit_version", group.EditVersion)
	if report.Result.OverThreshold {
		s.logger.Warn("Address group member count reaches device limit",
			"merged", len(report.Result.Merged),
			"limit", s.opts.MemberLimit)
	}

	if s.opts.DryRun {
		s.logger.Info("Dry run, group not updated")
		return report, nil
	}
	if len(report.Result.Added) == 0 {
		s.logger.Info("Address group already contains every entry")
		return report, nil
	}

	if err := s.svc.UpdateGroup(ctx, group, report.Result.Merged); err != nil {
		return report, err
	}
	report.Updated = true
	s.logger.Info("Address group updated", "group", group.Name, "members", len(report.Result.Merged))
	return report, nil
}

func (s *Syncer) processEntry(ctx context.Context, entry model.AddressEntry) (model.EntryOutcome, error) {
	outcome := model.EntryOutcome{Entry: entry}

	id, found, err := s.svc.ResolveAddress(ctx, entry)
	if err != nil {
		return outcome, fmt.Errorf("failed to resolve %s: %w", entry.Value(), err)
	}
	if found {
		outcome.ID = id
		outcome.Status = model.StatusExisting
		s.logger.Debug("Address object exists", "address", entry.Value(), "id", id)
		return outcome, nil
	}

	if s.opts.DryRun {
		outcome.Status = model.StatusPlanned
		s.logger.Info("Address object would be created", "address", entry.Value(), "type", entry.Type)
		return outcome, nil
	}

	name := s.opts.Templates.Name(entry)
	if err := s.svc.CreateAddress(ctx, entry, name, s.opts.Templates.Description(entry)); err != nil {
		return outcome, err
	}
	id, found, err = s.svc.ResolveAddress(ctx, entry)
	if err != nil {
		return outcome, fmt.Errorf("failed to resolve %s after creation: %w", entry.Value(), err)
	}
	if !found {
		return outcome, fmt.Errorf("%w: %s", ErrUnresolved, entry.Value())
	}

	outcome.ID = id
	outcome.Status = model.StatusCreated
	s.logger.Info("Address object created", "address", entry.Value(), "name", name, "id", id)
	return outcome, nil
}

// entryWarnings flags entries in special-purpose space and entries already
// covered by a broader network of the same input. They are still processed.
func entryWarnings(entries []model.AddressEntry, prefixes []netip.Prefix) [][]string {
	warnings := make([][]string, len(entries))
	for i, e := range entries {
		if nets, ok := reserved.Lookup(e.Prefix); ok {
			warnings[i] = append(warnings[i], fmt.Sprintf("overlaps %s %s (%s)", nets[0].Name, nets[0].Prefix, nets[0].Reference))
		}
	}
	for i, j := range utils.CoveredBy(prefixes) {
		warnings[i] = append(warnings[i], fmt.Sprintf("already covered by %s", entries[j].Value()))
	}
	return warnings
}

func footprintSize(prefixes []netip.Prefix) uint64 {
	var total uint64
	for _, p := range prefixes {
		size := utils.PrefixSize(p)
		if total+size < total {
			return math.MaxUint64
		}
		total += size
	}
	return total
}
