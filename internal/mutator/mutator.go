// Package mutator rewrites the proxy server document according to the
// per-endpoint rule table and produces the change-set for the patch stage.
package mutator

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

const component = "mutator"

// EndpointsKey is the document key holding the endpoint list
const EndpointsKey = "inbounds"

// Secrets generates the random material written into endpoints
type Secrets interface {
	Token() (string, error)
	X25519() (domain.KeyPair, error)
	SS2022Password() (string, error)
}

// Mutator applies the rule table to a server document
type Mutator struct {
	secrets Secrets
	logger  *logger.Logger
}

// New creates a Mutator
func New(secrets Secrets, log *logger.Logger) *Mutator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Mutator{
		secrets: secrets,
		logger:  log.MutatorLogger(),
	}
}

// Applied records one rule applied to one endpoint
type Applied struct {
	Index int
	Tag   string
	Kind  RuleKind
}

// Result is the outcome of a mutation run
type Result struct {
	// Document is the rewritten document, indented with four spaces
	Document []byte
	// Changes holds one entry per mutated endpoint whose rule emits
	Changes domain.ChangeSet
	// Applied lists the rules applied, in document order
	Applied []Applied
	// PublicKeys are the Reality public halves generated during the run, in
	// document order. They are not persisted until RecordKeys is called.
	PublicKeys []string
}

// PublicKey returns the last Reality public key generated, if any
func (r *Result) PublicKey() string {
	if len(r.PublicKeys) == 0 {
		return ""
	}
	return r.PublicKeys[len(r.PublicKeys)-1]
}

// RecordKeys persists the pending public keys. Call it only once the private
// halves have reached the server document.
func (r *Result) RecordKeys(recorder domain.KeyRecorder) error {
	if len(r.PublicKeys) == 0 {
		return nil
	}
	if recorder == nil {
		return rerrors.NewError(rerrors.ErrCodeInternalError, component, "no key recorder configured")
	}
	for _, pub := range r.PublicKeys {
		if err := recorder.ReplacePublicKey(pub); err != nil {
			return err
		}
	}
	return nil
}

// Width 0 keeps every array element on its own line
var prettyOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "    ", SortKeys: false}

type endpoint struct {
	index int
	tag   string
}

// Mutate rewrites every endpoint whose tag appears in Rules. Endpoints with
// other tags, and every field a rule does not name, are left as they were.
// Nothing is persisted: generated public keys are returned in the Result.
func (m *Mutator) Mutate(doc []byte, decoys domain.DecoySelection, ownDomain string) (*Result, error) {
	ownDomain = strings.TrimSpace(ownDomain)
	if ownDomain == "" {
		return nil, rerrors.NewMissingPrerequisiteError(component, "own domain", nil)
	}
	if err := decoys.Validate(); err != nil {
		return nil, rerrors.NewInvalidInputError(component, err.Error())
	}

	endpoints, err := parseEndpoints(doc)
	if err != nil {
		return nil, err
	}

	text := string(doc)
	res := &Result{Changes: make(domain.ChangeSet)}

	for _, ep := range endpoints {
		rule, ok := Rules[ep.tag]
		if !ok {
			continue
		}

		e := &edit{doc: text, base: fmt.Sprintf("%s.%d", EndpointsKey, ep.index)}
		value, pub, err := m.apply(e, rule, decoys, ownDomain)
		if err != nil {
			return nil, err
		}
		text = e.doc

		if rule.Emits {
			res.Changes[ep.tag] = value
		}
		if pub != "" {
			res.PublicKeys = append(res.PublicKeys, pub)
		}
		res.Applied = append(res.Applied, Applied{Index: ep.index, Tag: ep.tag, Kind: rule.Kind})

		m.logger.WithFields(map[string]interface{}{
			"tag":   ep.tag,
			"rule":  rule.Kind.String(),
			"emits": rule.Emits,
		}).Info("Endpoint mutated")
	}

	res.Document = pretty.PrettyOptions([]byte(text), prettyOptions)

	m.logger.WithFields(map[string]interface{}{
		"endpoints": len(endpoints),
		"mutated":   len(res.Applied),
		"changes":   len(res.Changes),
	}).Info("Document mutation complete")

	return res, nil
}

// apply runs one rule and returns the change-set value and any public key
func (m *Mutator) apply(e *edit, rule Rule, decoys domain.DecoySelection, own string) (value, pub string, err error) {
	switch rule.Kind {
	case KindTransport:
		tok, err := m.secrets.Token()
		if err != nil {
			return "", "", secretError(err)
		}
		value = rule.Prefix + tok
		e.set(rule.Field, value)

	case KindHysteria:
		tok, err := m.secrets.Token()
		if err != nil {
			return "", "", secretError(err)
		}
		value = tok
		e.set(FieldMasquerade, fmt.Sprintf("https://%s:80/", decoys.Hysteria))
		e.set(FieldObfsPassword, value)
		e.set(FieldTLSServerName, own)

	case KindReality:
		kp, err := m.secrets.X25519()
		if err != nil {
			return "", "", secretError(err)
		}
		value, pub = kp.Private, kp.Public
		e.set(FieldTLSServerName, decoys.Reality)
		e.set(FieldRealityKey, kp.Private)
		e.set(FieldRealityTarget, decoys.Reality)

	case KindSS2022:
		pw, err := m.secrets.SS2022Password()
		if err != nil {
			return "", "", secretError(err)
		}
		value = pw
		e.set(FieldPassword, value)

	case KindShadowTLS:
		e.set(FieldHandshakeServer, decoys.ShadowTLS)

	case KindTUIC:
		e.set(FieldTLSServerName, own)

	default:
		return "", "", rerrors.NewError(rerrors.ErrCodeInternalError, component,
			fmt.Sprintf("unhandled rule kind %d", rule.Kind))
	}

	if e.err != nil {
		return "", "", rerrors.WrapError(e.err, rerrors.ErrCodeMalformedConfig, component, "failed to edit endpoint").
			WithMetadata("path", e.base)
	}
	return value, pub, nil
}

func secretError(err error) error {
	return rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to generate secret material")
}

// Validate checks that doc has the shape Mutate expects without changing it
func Validate(doc []byte) error {
	_, err := parseEndpoints(doc)
	return err
}

// parseEndpoints validates the document shape before anything is changed
func parseEndpoints(doc []byte) ([]endpoint, error) {
	if !gjson.ValidBytes(doc) {
		return nil, rerrors.NewMalformedConfigError("document is not valid JSON", nil)
	}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, rerrors.NewMalformedConfigError("document root must be an object", nil)
	}

	list := root.Get(EndpointsKey)
	if !list.Exists() {
		return nil, nil
	}
	if !list.IsArray() {
		return nil, rerrors.NewMalformedConfigError(fmt.Sprintf("%q must be a list of endpoint objects", EndpointsKey), nil)
	}

	var (
		endpoints []endpoint
		shapeErr  error
	)
	list.ForEach(func(_, item gjson.Result) bool {
		idx := len(endpoints)
		if !item.IsObject() {
			shapeErr = rerrors.NewMalformedConfigError(
				fmt.Sprintf("%s[%d] is not an endpoint object", EndpointsKey, idx), nil)
			return false
		}
		tag := item.Get("tag")
		ep := endpoint{index: idx}
		if tag.Type == gjson.String {
			ep.tag = tag.Str
		}
		endpoints = append(endpoints, ep)
		return true
	})
	if shapeErr != nil {
		return nil, shapeErr
	}
	return endpoints, nil
}

// edit accumulates sjson writes against one endpoint. The first error sticks.
type edit struct {
	doc  string
	base string
	err  error
}

// set writes value at field, turning any non-object parent into an empty object
func (e *edit) set(field, value string) {
	if e.err != nil {
		return
	}

	parts := strings.Split(field, ".")
	for i := 1; i < len(parts); i++ {
		parent := e.base + "." + strings.Join(parts[:i], ".")
		if r := gjson.Get(e.doc, parent); r.Exists() && !r.IsObject() {
			doc, err := sjson.SetRaw(e.doc, parent, "{}")
			if err != nil {
				e.err = err
				return
			}
			e.doc = doc
		}
	}

	doc, err := sjson.Set(e.doc, e.base+"."+field, value)
	if err != nil {
		e.err = err
		return
	}
	e.doc = doc
}
