// Package selector picks the decoy TLS domains for one rotation.
package selector

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
)

const component = "selector"

// Selector samples decoy domains without replacement
type Selector struct {
	rng *rand.Rand
}

// New returns a Selector using rng. A nil rng is seeded from crypto/rand.
func New(rng *rand.Rand) *Selector {
	if rng == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("selector: seeding from crypto/rand: %v", err))
		}
		rng = rand.New(rand.NewChaCha8(seed))
	}
	return &Selector{rng: rng}
}

// NewSeeded returns a deterministic Selector, for tests and reproducible runs
func NewSeeded(seed uint64) *Selector {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return New(rand.New(rand.NewChaCha8(s)))
}

// Select returns three distinct candidates assigned, in sample order, to the
// reality, shadowtls and hysteria roles. Every 3-subset is equally likely.
func (s *Selector) Select(candidates []string) (domain.DecoySelection, error) {
	pool := distinct(candidates)
	if len(pool) < len(domain.Roles) {
		return domain.DecoySelection{}, rerrors.NewInvalidInputError(component,
			fmt.Sprintf("candidate list needs at least %d distinct domains, got %d", len(domain.Roles), len(pool))).
			WithMetadata("candidates", len(candidates))
	}

	// partial Fisher-Yates: the first three slots end up a uniform sample
	for i := 0; i < len(domain.Roles); i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return domain.DecoySelection{
		Reality:   pool[0],
		ShadowTLS: pool[1],
		Hysteria:  pool[2],
	}, nil
}

// distinct copies non-empty candidates, dropping repeats and keeping first-seen order
func distinct(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// LoadCandidates reads a JSON array of domain strings from path
func LoadCandidates(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewMissingPrerequisiteError(component, path, err)
		}
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to read candidate list")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInvalidInput, component, "candidate list must be a JSON array").
			WithMetadata("path", path)
	}

	domains := make([]string, 0, len(raw))
	for i, item := range raw {
		var d string
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, rerrors.NewInvalidInputError(component,
				fmt.Sprintf("candidate list entry %d is not a string", i)).WithMetadata("path", path)
		}
		domains = append(domains, d)
	}

	if len(domains) < len(domain.Roles) {
		return nil, rerrors.NewInvalidInputError(component,
			fmt.Sprintf("candidate list must hold at least %d domains, got %d", len(domain.Roles), len(domains))).
			WithMetadata("path", path)
	}

	return domains, nil
}
