package domain

import (
	"bytes"
	"encoding/json"
	"net/url"
	"unicode/utf8"

	dErrors "eeia/pkg/domain-errors"
)

// Policy maps packet predicates to a routing and storage outcome.
//
// Policies are immutable values: every field is a value type, so copies never
// alias. An empty predicate matches anything on its axis. The Require* flags are
// declarative intents for collaborators; routing does not enforce them.
type Policy struct {
	ID   string
	Name string

	MatchEnvironment Environment
	MatchDomain      Domain
	MinPriority      Priority

	// TargetEndpoint is an absolute http(s) URL, or empty for the system default.
	TargetEndpoint       string
	StoreInTimeseries    bool
	StoreInObjectStorage bool

	RequireAuth           bool
	RequireIntegrityCheck bool
	RequireEncryption     bool
}

// PolicyOption customises a policy built by NewPolicy.
type PolicyOption func(*Policy)

func MatchEnvironment(e Environment) PolicyOption {
	return func(p *Policy) { p.MatchEnvironment = e }
}

func MatchDomain(d Domain) PolicyOption {
	return func(p *Policy) { p.MatchDomain = d }
}

func WithMinPriority(pr Priority) PolicyOption {
	return func(p *Policy) { p.MinPriority = pr }
}

func WithTarget(endpoint string) PolicyOption {
	return func(p *Policy) { p.TargetEndpoint = endpoint }
}

// WithStorage overrides both storage flags.
func WithStorage(timeseries, objectStorage bool) PolicyOption {
	return func(p *Policy) {
		p.StoreInTimeseries = timeseries
		p.StoreInObjectStorage = objectStorage
	}
}

// WithSecurity overrides the three declarative security flags.
func WithSecurity(auth, integrity, encryption bool) PolicyOption {
	return func(p *Policy) {
		p.RequireAuth = auth
		p.RequireIntegrityCheck = integrity
		p.RequireEncryption = encryption
	}
}

// NewPolicy builds a validated policy. Defaults: timeseries storage on, object
// storage off, all security flags on.
func NewPolicy(id, name string, opts ...PolicyOption) (Policy, error) {
	p := Policy{
		ID:                    id,
		Name:                  name,
		StoreInTimeseries:     true,
		RequireAuth:           true,
		RequireIntegrityCheck: true,
		RequireEncryption:     true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks bounds, enum membership and the endpoint URL.
func (p Policy) Validate() error {
	if n := utf8.RuneCountInString(p.ID); n < 3 || n > 64 {
		return dErrors.New(dErrors.CodeValidation, "policy_id must be 3-64 characters")
	}
	if n := utf8.RuneCountInString(p.Name); n < 3 || n > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be 3-128 characters")
	}
	if p.MatchEnvironment != "" && !p.MatchEnvironment.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid match_environment: "+p.MatchEnvironment.String())
	}
	if p.MatchDomain != "" && !p.MatchDomain.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid match_domain: "+p.MatchDomain.String())
	}
	if p.MinPriority != "" && !p.MinPriority.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid min_priority: "+p.MinPriority.String())
	}
	if p.TargetEndpoint != "" {
		if err := validateEndpoint(p.TargetEndpoint); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether every set predicate accepts pkt.
func (p Policy) Matches(pkt Packet) bool {
	if p.MatchEnvironment != "" && p.MatchEnvironment != pkt.Environment() {
		return false
	}
	if p.MatchDomain != "" && p.MatchDomain != pkt.Domain() {
		return false
	}
	if p.MinPriority != "" && pkt.Priority().Ordinal() < p.MinPriority.Ordinal() {
		return false
	}
	return true
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "target_endpoint must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return dErrors.New(dErrors.CodeValidation, "target_endpoint must use http or https")
	}
	if u.Host == "" {
		return dErrors.New(dErrors.CodeValidation, "target_endpoint must include a host")
	}
	return nil
}

// PolicyDocument is the wire and seed-file form of a policy. Pointer fields
// distinguish "absent" from false so defaults apply.
type PolicyDocument struct {
	PolicyID              string       `json:"policy_id" yaml:"policy_id"`
	Name                  string       `json:"name" yaml:"name"`
	MatchEnvironment      *Environment `json:"match_environment" yaml:"match_environment"`
	MatchDomain           *Domain      `json:"match_domain" yaml:"match_domain"`
	MinPriority           *Priority    `json:"min_priority" yaml:"min_priority"`
	TargetEndpoint        *string      `json:"target_endpoint" yaml:"target_endpoint"`
	StoreInTimeseries     *bool        `json:"store_in_timeseries" yaml:"store_in_timeseries"`
	StoreInObjectStorage  *bool        `json:"store_in_object_storage" yaml:"store_in_object_storage"`
	RequireAuth           *bool        `json:"require_auth" yaml:"require_auth"`
	RequireIntegrityCheck *bool        `json:"require_integrity_check" yaml:"require_integrity_check"`
	RequireEncryption     *bool        `json:"require_encryption" yaml:"require_encryption"`
}

// ToPolicy applies defaults and validates.
func (d PolicyDocument) ToPolicy() (Policy, error) {
	var opts []PolicyOption
	if d.MatchEnvironment != nil {
		opts = append(opts, MatchEnvironment(*d.MatchEnvironment))
	}
	if d.MatchDomain != nil {
		opts = append(opts, MatchDomain(*d.MatchDomain))
	}
	if d.MinPriority != nil {
		opts = append(opts, WithMinPriority(*d.MinPriority))
	}
	if d.TargetEndpoint != nil {
		opts = append(opts, WithTarget(*d.TargetEndpoint))
	}
	opts = append(opts, func(p *Policy) {
		setIf(&p.StoreInTimeseries, d.StoreInTimeseries)
		setIf(&p.StoreInObjectStorage, d.StoreInObjectStorage)
		setIf(&p.RequireAuth, d.RequireAuth)
		setIf(&p.RequireIntegrityCheck, d.RequireIntegrityCheck)
		setIf(&p.RequireEncryption, d.RequireEncryption)
	})
	return NewPolicy(d.PolicyID, d.Name, opts...)
}

// Document returns the wire form of p.
func (p Policy) Document() PolicyDocument {
	doc := PolicyDocument{
		PolicyID:              p.ID,
		Name:                  p.Name,
		StoreInTimeseries:     ptr(p.StoreInTimeseries),
		StoreInObjectStorage:  ptr(p.StoreInObjectStorage),
		RequireAuth:           ptr(p.RequireAuth),
		RequireIntegrityCheck: ptr(p.RequireIntegrityCheck),
		RequireEncryption:     ptr(p.RequireEncryption),
	}
	if p.MatchEnvironment != "" {
		doc.MatchEnvironment = ptr(p.MatchEnvironment)
	}
	if p.MatchDomain != "" {
		doc.MatchDomain = ptr(p.MatchDomain)
	}
	if p.MinPriority != "" {
		doc.MinPriority = ptr(p.MinPriority)
	}
	if p.TargetEndpoint != "" {
		doc.TargetEndpoint = ptr(p.TargetEndpoint)
	}
	return doc
}

func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Document())
}

// UnmarshalJSON decodes strictly, rejecting unknown fields.
func (p *Policy) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var doc PolicyDocument
	if err := dec.Decode(&doc); err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy")
	}
	if err := requireEOF(dec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy")
	}
	policy, err := doc.ToPolicy()
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

func setIf(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func ptr[T any](v T) *T { return &v }
