package mutator

import "github.com/belgiumluv/docker-cont/internal/domain"

// RuleKind selects how an endpoint is rewritten
type RuleKind int

const (
	// KindTransport sets one transport field to a prefixed random token
	KindTransport RuleKind = iota
	// KindHysteria sets masquerade, obfuscation password and SNI
	KindHysteria
	// KindReality installs a fresh X25519 key pair and the reality decoy
	KindReality
	// KindSS2022 sets a fresh 2022-blake3 pre-shared key
	KindSS2022
	// KindShadowTLS points the handshake at the shadowtls decoy
	KindShadowTLS
	// KindTUIC sets the SNI to the operator's own domain
	KindTUIC
)

// String returns the string representation of RuleKind
func (k RuleKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHysteria:
		return "hysteria"
	case KindReality:
		return "reality"
	case KindSS2022:
		return "ss2022"
	case KindShadowTLS:
		return "shadowtls"
	case KindTUIC:
		return "tuic"
	default:
		return "unknown"
	}
}

// Field paths inside an endpoint object
const (
	FieldServiceName     = "transport.service_name"
	FieldPath            = "transport.path"
	FieldMasquerade      = "masquerade"
	FieldObfsPassword    = "obfs.password"
	FieldTLSServerName   = "tls.server_name"
	FieldRealityKey      = "tls.reality.private_key"
	FieldRealityTarget   = "tls.reality.handshake.server"
	FieldPassword        = "password"
	FieldHandshakeServer = "handshake.server"
)

// Token prefixes for the transport rules
const (
	PrefixGRPC        = "api"
	PrefixHTTPUpgrade = "/files"
	PrefixTCP         = "/user"
	PrefixWS          = "/assets"
)

// Rule describes the mutation applied to one tagged endpoint
type Rule struct {
	Kind RuleKind
	// Field is the transport field rewritten by KindTransport rules
	Field string
	// Prefix is prepended to the generated token of KindTransport rules
	Prefix string
	// Emits reports whether the rule contributes a change-set entry
	Emits bool
}

func transport(field, prefix string) Rule {
	return Rule{Kind: KindTransport, Field: field, Prefix: prefix, Emits: true}
}

// Rules is the dispatch table keyed by exact, case-sensitive endpoint tag.
// ShadowTLS and TUIC do not emit: the load balancer picks up the shadowtls
// decoy through domain substitution instead.
var Rules = map[string]Rule{
	domain.TagTrojanGRPC: transport(FieldServiceName, PrefixGRPC),
	domain.TagVlessGRPC:  transport(FieldServiceName, PrefixGRPC),
	domain.TagVmessGRPC:  transport(FieldServiceName, PrefixGRPC),

	domain.TagVlessHTTPUpgrade: transport(FieldPath, PrefixHTTPUpgrade),
	domain.TagVmessHTTPUpgrade: transport(FieldPath, PrefixHTTPUpgrade),

	domain.TagVlessTCP:  transport(FieldPath, PrefixTCP),
	domain.TagVmessTCP:  transport(FieldPath, PrefixTCP),
	domain.TagTrojanTCP: transport(FieldPath, PrefixTCP),

	domain.TagVmessWS:  transport(FieldPath, PrefixWS),
	domain.TagTrojanWS: transport(FieldPath, PrefixWS),
	domain.TagVlessWS:  transport(FieldPath, PrefixWS),

	domain.TagHysteria:  {Kind: KindHysteria, Emits: true},
	domain.TagReality:   {Kind: KindReality, Emits: true},
	domain.TagSS2022:    {Kind: KindSS2022, Emits: true},
	domain.TagShadowTLS: {Kind: KindShadowTLS},
	domain.TagTUIC:      {Kind: KindTUIC},
}

// Lookup returns the rule for tag
func Lookup(tag string) (Rule, bool) {
	r, ok := Rules[tag]
	return r, ok
}
