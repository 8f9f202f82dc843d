// Package patcher propagates a change-set and the visible decoy domains into
// the HAProxy configuration text.
package patcher

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/internal/fsutil"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

const component = "patcher"

// TagBackends maps an endpoint tag to the load-balancer backends routed by
// path prefix. The tcp endpoints also carry a plain-http fallback backend.
var TagBackends = map[string][]string{
	domain.TagVlessWS:           {domain.TagVlessWS},
	domain.TagVlessGRPC:         {domain.TagVlessGRPC},
	domain.TagVlessHTTPUpgrade:  {domain.TagVlessHTTPUpgrade},
	domain.TagVlessTCP:          {domain.TagVlessTCP, domain.TagVlessTCP + "-http"},
	domain.TagVmessWS:           {domain.TagVmessWS},
	domain.TagVmessGRPC:         {domain.TagVmessGRPC},
	domain.TagVmessHTTPUpgrade:  {domain.TagVmessHTTPUpgrade},
	domain.TagVmessTCP:          {domain.TagVmessTCP, domain.TagVmessTCP + "-http"},
	domain.TagTrojanWS:          {domain.TagTrojanWS},
	domain.TagTrojanGRPC:        {domain.TagTrojanGRPC},
	domain.TagTrojanHTTPUpgrade: {domain.TagTrojanHTTPUpgrade},
	domain.TagTrojanTCP:         {domain.TagTrojanTCP, domain.TagTrojanTCP + "-http"},
}

// Patcher rewrites load-balancer configuration text
type Patcher struct {
	backends map[string][]string
	logger   *logger.Logger
}

// New creates a Patcher using TagBackends
func New(log *logger.Logger) *Patcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Patcher{
		backends: TagBackends,
		logger:   log.PatcherLogger(),
	}
}

// backendRule matches "use_backend <be> if { path_beg /old" and captures the
// prefix up to the path and the path itself.
func backendRule(be string) *regexp.Regexp {
	return regexp.MustCompile(`(use_backend\s+` + regexp.QuoteMeta(be) + `\s+if\s+\{\s*path_beg\s+)(/[^ }\n]+)`)
}

func withLeadingSlash(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// Apply rewrites path prefixes for every tag in changes and substitutes the
// sentinel decoy hosts with the supplied domains. Tags are processed in sorted
// order so the notes are reproducible. Applying the same inputs twice leaves
// the text unchanged the second time.
func (p *Patcher) Apply(text string, changes domain.ChangeSet, domains domain.VisibleDomains) (string, []domain.PatchNote) {
	var notes []domain.PatchNote

	for _, tag := range changes.Tags() {
		backends, ok := p.backends[tag]
		if !ok {
			notes = append(notes, domain.PatchNote{
				Kind:    domain.NoteWarn,
				Subject: tag,
				Message: fmt.Sprintf("unknown tag '%s', skipped", tag),
			})
			continue
		}
		newPath := withLeadingSlash(changes[tag])
		if newPath == "" {
			notes = append(notes, domain.PatchNote{
				Kind:    domain.NoteWarn,
				Subject: tag,
				Message: fmt.Sprintf("empty value for tag '%s', skipped", tag),
			})
			continue
		}
		for _, be := range backends {
			text = p.replacePaths(text, be, newPath, &notes)
		}
	}

	if domains.Reality != "" {
		text = replaceHost(text, domain.RealitySentinel, domains.Reality, "Reality", &notes)
	}
	if domains.ShadowTLS != "" {
		text = replaceHost(text, domain.ShadowTLSSentinel, domains.ShadowTLS, "ShadowTLS", &notes)
	}

	return text, notes
}

func (p *Patcher) replacePaths(text, be, newPath string, notes *[]domain.PatchNote) string {
	matches := backendRule(be).FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		*notes = append(*notes, domain.PatchNote{
			Kind:    domain.NoteMiss,
			Subject: be,
			Message: fmt.Sprintf("use_backend %s with path_beg not found", be),
		})
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		// m[4]:m[5] is the path group
		old := text[m[4]:m[5]]
		b.WriteString(text[last:m[4]])
		if old == newPath {
			*notes = append(*notes, domain.PatchNote{
				Kind: domain.NoteSame, Subject: be, Old: old, New: newPath,
				Message: fmt.Sprintf("%s: %s unchanged", be, old),
			})
		} else {
			*notes = append(*notes, domain.PatchNote{
				Kind: domain.NotePath, Subject: be, Old: old, New: newPath,
				Message: fmt.Sprintf("%s: %s -> %s", be, old, newPath),
			})
		}
		b.WriteString(newPath)
		last = m[5]
	}
	b.WriteString(text[last:])
	return b.String()
}

// replaceHost substitutes "<sentinel>:80" first and then any bare occurrence,
// both on word boundaries.
func replaceHost(text, sentinel, host, label string, notes *[]domain.PatchNote) string {
	quoted := regexp.QuoteMeta(sentinel)
	passes := []struct {
		rx  *regexp.Regexp
		new string
	}{
		{rx: regexp.MustCompile(`\b` + quoted + `:80\b`), new: host + ":80"},
		{rx: regexp.MustCompile(`\b` + quoted + `\b`), new: host},
	}

	for _, pass := range passes {
		newValue := pass.new
		text = pass.rx.ReplaceAllStringFunc(text, func(old string) string {
			if old != newValue {
				*notes = append(*notes, domain.PatchNote{
					Kind: domain.NoteHost, Subject: label, Old: old, New: newValue,
					Message: fmt.Sprintf("%s: %s -> %s", label, old, newValue),
				})
			}
			return newValue
		})
	}
	return text
}

// PatchFile reads in, applies the change-set and domains, and writes the result
// to out. When out is empty or names the same file as in, the original is
// first copied to in+".bak".
func (p *Patcher) PatchFile(in, out string, changes domain.ChangeSet, domains domain.VisibleDomains) ([]domain.PatchNote, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewMissingPrerequisiteError(component, in, err)
		}
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to read load balancer config").
			WithMetadata("path", in)
	}

	text, notes := p.Apply(string(data), changes, domains)

	if out == "" {
		out = in
	}
	if samePath(in, out) {
		backup := in + ".bak"
		if err := fsutil.CopyFile(in, backup); err != nil {
			return notes, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to back up load balancer config").
				WithMetadata("path", backup)
		}
		notes = append(notes, domain.PatchNote{
			Kind: domain.NoteBackup, Subject: backup,
			Message: fmt.Sprintf("%s created", backup),
		})
	}

	// written in place: haproxy.cfg is often a symlink or a single-file bind mount
	if err := fsutil.WriteFileInPlace(out, []byte(text), 0644); err != nil {
		return notes, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to write load balancer config").
			WithMetadata("path", out)
	}
	notes = append(notes, domain.PatchNote{
		Kind: domain.NoteWrite, Subject: out,
		Message: fmt.Sprintf("%s updated", out),
	})

	p.logger.WithFields(map[string]interface{}{
		"input":       in,
		"output":      out,
		"notes":       len(notes),
		"transitions": countTransitions(notes),
	}).Info("Load balancer config patched")

	return notes, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func countTransitions(notes []domain.PatchNote) int {
	n := 0
	for _, note := range notes {
		if note.IsTransition() {
			n++
		}
	}
	return n
}
