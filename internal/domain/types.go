package domain

import (
	"fmt"
	"sort"
	"time"
)

// Role identifies which endpoint a decoy domain is assigned to
type Role string

const (
	// RoleReality is the decoy used as the Reality handshake target and SNI
	RoleReality Role = "reality"
	// RoleShadowTLS is the decoy used as the ShadowTLS handshake target
	RoleShadowTLS Role = "shadowtls"
	// RoleHysteria is the decoy used in the Hysteria masquerade URL
	RoleHysteria Role = "hysteria"
)

// Roles lists the decoy roles in the order they are assigned from a sample
var Roles = []Role{RoleReality, RoleShadowTLS, RoleHysteria}

// DecoySelection is the set of decoy TLS domains chosen for one rotation.
// The three values are pairwise distinct.
type DecoySelection struct {
	Reality   string `json:"reality" yaml:"reality"`
	ShadowTLS string `json:"shadowtls" yaml:"shadowtls"`
	Hysteria  string `json:"hysteria" yaml:"hysteria"`
}

// Get returns the domain assigned to a role
func (s DecoySelection) Get(role Role) string {
	switch role {
	case RoleReality:
		return s.Reality
	case RoleShadowTLS:
		return s.ShadowTLS
	case RoleHysteria:
		return s.Hysteria
	default:
		return ""
	}
}

// Validate checks that every role is populated and no two roles share a domain
func (s DecoySelection) Validate() error {
	seen := make(map[string]Role, len(Roles))
	for _, role := range Roles {
		d := s.Get(role)
		if d == "" {
			return fmt.Errorf("decoy for role %s is empty", role)
		}
		if prev, ok := seen[d]; ok {
			return fmt.Errorf("decoy %q assigned to both %s and %s", d, prev, role)
		}
		seen[d] = role
	}
	return nil
}

// VisibleDomains is the subset of a selection the load balancer mirrors.
// The hysteria decoy is never exposed to the load balancer.
type VisibleDomains struct {
	Reality   string
	ShadowTLS string
}

// Visible returns the externally visible part of the selection
func (s DecoySelection) Visible() VisibleDomains {
	return VisibleDomains{Reality: s.Reality, ShadowTLS: s.ShadowTLS}
}

// StoredSelection is a DecoySelection read back from the store
type StoredSelection struct {
	DecoySelection
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyPair is an X25519 key pair encoded as unpadded URL-safe base64
type KeyPair struct {
	Private string
	Public  string
}

// StoredPublicKey is the latest public key read back from the store
type StoredPublicKey struct {
	Key       string    `json:"public_key"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeSet maps an endpoint tag to the single externally meaningful value
// that changed for it: a path, a service name, or a secret.
type ChangeSet map[string]string

// Tags returns the change-set keys in sorted order
func (c ChangeSet) Tags() []string {
	tags := make([]string, 0, len(c))
	for tag := range c {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NoteKind classifies a patch outcome
type NoteKind string

const (
	NoteWarn   NoteKind = "WARN"
	NotePath   NoteKind = "PATH"
	NoteHost   NoteKind = "HOST"
	NoteSame   NoteKind = "SAME"
	NoteMiss   NoteKind = "MISS"
	NoteBackup NoteKind = "BACKUP"
	NoteWrite  NoteKind = "WRITE"
)

// PatchNote is one ordered log entry produced while patching the load
// balancer configuration. Notes are for observability only.
type PatchNote struct {
	Kind    NoteKind
	Subject string
	Old     string
	New     string
	Message string
}

// String renders the note as a single human-readable line
func (n PatchNote) String() string {
	return fmt.Sprintf("[%s] %s", n.Kind, n.Message)
}

// IsTransition reports whether the note records an actual text change
func (n PatchNote) IsTransition() bool {
	return n.Kind == NotePath || n.Kind == NoteHost
}
