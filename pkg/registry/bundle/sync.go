package bundle

import (
	"context"
	"log/slog"

	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
)

// Syncer applies bundle documents to the registry. Policies named in the
// bundle are created on first sight; a document whose rules differ from
// the latest stored version produces a new version. Nothing is ever
// deleted, removing a document from the bundle leaves history intact.
type Syncer struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewSyncer creates a bundle syncer for the given registry.
func NewSyncer(reg *registry.Registry) *Syncer {
	return &Syncer{
		registry: reg,
		logger:   slog.Default().With("component", "registry.bundle"),
	}
}

// Sync reconciles the documents against the registry and returns the
// number of versions created.
func (s *Syncer) Sync(ctx context.Context, docs []*Document) (int, error) {
	created := 0
	for _, doc := range docs {
		changed, err := s.syncOne(ctx, doc)
		if err != nil {
			return created, err
		}
		if changed {
			created++
		}
	}
	if created > 0 {
		s.logger.Info("bundle sync applied", "versions_created", created)
	}
	return created, nil
}

func (s *Syncer) syncOne(ctx context.Context, doc *Document) (bool, error) {
	pol, err := s.registry.FindPolicy(ctx, registry.Scope(doc.Scope), doc.Target, doc.Name)
	if err != nil {
		if _, ok := err.(*registry.NotFoundError); !ok {
			return false, err
		}
		pol, err = s.registry.CreatePolicy(ctx, doc.Name, registry.Scope(doc.Scope), doc.Target, doc.OwnerRole)
		if err != nil {
			return false, err
		}
	}

	rs := doc.RuleSet()
	next, err := s.registry.NextVersionNumber(ctx, pol.ID)
	if err != nil {
		return false, err
	}

	if next > 1 {
		latest, err := s.registry.LatestVersion(ctx, pol.ID)
		if err != nil {
			return false, err
		}
		same, err := rulesEqual(latest.Rules, rs)
		if err != nil {
			return false, err
		}
		if same && latest.Level == registry.EnforcementLevel(doc.Level) {
			return false, nil
		}
	}

	note := doc.ChangeNote
	if note == "" {
		note = "bundle sync"
	}
	_, err = s.registry.CreateVersion(ctx, pol.ID, next, registry.EnforcementLevel(doc.Level), rs, "bundle", note)
	if err != nil {
		return false, err
	}
	return true, nil
}

// rulesEqual compares rule sets by canonical form.
func rulesEqual(a, b *rules.RuleSet) (bool, error) {
	ca, err := a.Canonical()
	if err != nil {
		return false, err
	}
	cb, err := b.Canonical()
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}
