package service

import (
	"context"
	"errors"

	"github.com/belgiumluv/docker-cont/internal/changeset"
	"github.com/belgiumluv/docker-cont/internal/config"
	"github.com/belgiumluv/docker-cont/internal/domain"
	"github.com/belgiumluv/docker-cont/internal/fsutil"
	"github.com/belgiumluv/docker-cont/internal/patcher"
	"github.com/belgiumluv/docker-cont/internal/store"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// PropagationReport summarizes a completed patch stage
type PropagationReport struct {
	Notes []domain.PatchNote
	// Domains is empty when no selection was recorded
	Domains domain.VisibleDomains
	Output  string
}

// Transitions counts notes that changed the configuration text
func (r *PropagationReport) Transitions() int {
	n := 0
	for _, note := range r.Notes {
		if note.IsTransition() {
			n++
		}
	}
	return n
}

// Propagator runs the patch stage
type Propagator struct {
	paths   config.PathsConfig
	patcher *patcher.Patcher
	logger  *logger.Logger
}

// NewPropagator creates a Propagator
func NewPropagator(paths config.PathsConfig, log *logger.Logger) *Propagator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Propagator{
		paths:   paths,
		patcher: patcher.New(log),
		logger:  log.StageLogger("patch"),
	}
}

// Run executes the patch stage
func (p *Propagator) Run(ctx context.Context) (*PropagationReport, error) {
	changes, err := changeset.Read(p.paths.ChangeSet)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	domains, err := p.latestDomains()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := p.paths.PatchOutput
	if out == "" {
		out = p.paths.HAProxyCfg
	}

	notes, err := p.patcher.PatchFile(p.paths.HAProxyCfg, out, changes, domains)
	for _, note := range notes {
		entry := p.logger.WithFields(map[string]interface{}{
			"kind":    string(note.Kind),
			"subject": note.Subject,
		})
		switch note.Kind {
		case domain.NoteWarn, domain.NoteMiss:
			entry.Warn(note.String())
		case domain.NoteSame:
			entry.Debug(note.String())
		default:
			entry.Info(note.String())
		}
	}
	if err != nil {
		return nil, err
	}

	return &PropagationReport{Notes: notes, Domains: domains, Output: out}, nil
}

// latestDomains reads the recorded decoys. A missing database or an empty
// selection table skips domain substitution; any other store failure aborts.
func (p *Propagator) latestDomains() (domain.VisibleDomains, error) {
	if !fsutil.Exists(p.paths.DBPath) {
		p.logger.WithField("db_path", p.paths.DBPath).
			Warn("Store not found, decoy domain substitution skipped")
		return domain.VisibleDomains{}, nil
	}

	st, err := store.Open(p.paths.DBPath, store.Options{ReadOnly: true}, p.logger)
	if err != nil {
		return domain.VisibleDomains{}, err
	}
	defer st.Close()

	sel, err := st.LatestDomainSelection()
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("No decoy selection recorded, decoy domain substitution skipped")
		return domain.VisibleDomains{}, nil
	}
	if err != nil {
		return domain.VisibleDomains{}, err
	}

	return sel.Visible(), nil
}
