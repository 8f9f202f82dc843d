package service

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/belgiumluv/docker-cont/internal/changeset"
	"github.com/belgiumluv/docker-cont/internal/config"
	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/internal/fsutil"
	"github.com/belgiumluv/docker-cont/internal/keys"
	"github.com/belgiumluv/docker-cont/internal/mutator"
	"github.com/belgiumluv/docker-cont/internal/selector"
	"github.com/belgiumluv/docker-cont/internal/store"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// RotationReport summarizes a completed mutation stage
type RotationReport struct {
	Selection     domain.DecoySelection
	OwnDomain     string
	Tags          []string
	Mutated       int
	PublicKey     string
	DocumentPath  string
	ChangeSetPath string
	Duration      time.Duration
}

// Rotator runs the mutation stage
type Rotator struct {
	paths    config.PathsConfig
	selector *selector.Selector
	secrets  mutator.Secrets
	logger   *logger.Logger
}

// NewRotator creates a Rotator. A nil selector or secrets source falls back
// to one seeded from crypto/rand.
func NewRotator(paths config.PathsConfig, sel *selector.Selector, secrets mutator.Secrets, log *logger.Logger) *Rotator {
	if log == nil {
		log = logger.NewNop()
	}
	if sel == nil {
		sel = selector.New(nil)
	}
	if secrets == nil {
		secrets = keys.NewGenerator(nil)
	}
	return &Rotator{
		paths:    paths,
		selector: sel,
		secrets:  secrets,
		logger:   log.StageLogger("rotate"),
	}
}

// inputs holds everything read before the first write
type inputs struct {
	candidates []string
	ownDomain  string
	document   []byte
}

// Run executes the mutation stage
func (r *Rotator) Run(ctx context.Context) (*RotationReport, error) {
	start := time.Now()

	in, err := r.readInputs()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel, err := r.selector.Select(in.candidates)
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(map[string]interface{}{
		"reality":   sel.Reality,
		"shadowtls": sel.ShadowTLS,
		"hysteria":  sel.Hysteria,
	}).Info("Decoy domains selected")

	st, err := store.Open(r.paths.DBPath, store.Options{}, r.logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.InitializeSchema(); err != nil {
		return nil, err
	}
	if err := st.ReplaceDomainSelection(sel); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := mutator.New(r.secrets, r.logger).Mutate(in.document, sel, in.ownDomain)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := fsutil.WriteFileAtomic(r.paths.ServerJSON, res.Document, 0644); err != nil {
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, "rotator", "failed to write server document").
			WithMetadata("path", r.paths.ServerJSON)
	}
	// the public key is published only once its private half is on disk
	if err := res.RecordKeys(st); err != nil {
		return nil, err
	}
	if err := changeset.Write(r.paths.ChangeSet, res.Changes); err != nil {
		return nil, err
	}

	report := &RotationReport{
		Selection:     sel,
		OwnDomain:     in.ownDomain,
		Tags:          res.Changes.Tags(),
		Mutated:       len(res.Applied),
		PublicKey:     res.PublicKey(),
		DocumentPath:  r.paths.ServerJSON,
		ChangeSetPath: r.paths.ChangeSet,
		Duration:      time.Since(start),
	}

	r.logger.WithFields(map[string]interface{}{
		"mutated":    report.Mutated,
		"changes":    len(report.Tags),
		"change_set": report.ChangeSetPath,
		"duration":   report.Duration.String(),
	}).Info("Rotation complete")

	return report, nil
}

// readInputs checks every prerequisite before anything is written
func (r *Rotator) readInputs() (*inputs, error) {
	for _, path := range []string{r.paths.DomainList, r.paths.OwnDomain, r.paths.ServerJSON} {
		if !fsutil.Exists(path) {
			return nil, rerrors.NewMissingPrerequisiteError("rotator", path, nil)
		}
	}

	candidates, err := selector.LoadCandidates(r.paths.DomainList)
	if err != nil {
		return nil, err
	}

	own, err := ReadOwnDomain(r.paths.OwnDomain)
	if err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(r.paths.ServerJSON)
	if err != nil {
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, "rotator", "failed to read server document").
			WithMetadata("path", r.paths.ServerJSON)
	}
	if err := mutator.Validate(doc); err != nil {
		return nil, err
	}

	return &inputs{candidates: candidates, ownDomain: own, document: doc}, nil
}

// ReadOwnDomain reads the server's public domain from a single-line file
func ReadOwnDomain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", rerrors.NewMissingPrerequisiteError("rotator", path, err)
		}
		return "", rerrors.WrapError(err, rerrors.ErrCodeInternalError, "rotator", "failed to read own domain")
	}
	own := strings.TrimSpace(string(data))
	if own == "" {
		return "", rerrors.NewMissingPrerequisiteError("rotator", "own domain", nil).WithMetadata("path", path)
	}
	return own, nil
}
