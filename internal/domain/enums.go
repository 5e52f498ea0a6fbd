package domain

import (
	"encoding/json"

	dErrors "eeia/pkg/domain-errors"
)

// Environment is the physical medium a device operates in.
type Environment string

const (
	EnvironmentGround Environment = "ground"
	EnvironmentAir    Environment = "air"
	EnvironmentOrbit  Environment = "orbit"
)

var validEnvironments = map[Environment]bool{
	EnvironmentGround: true,
	EnvironmentAir:    true,
	EnvironmentOrbit:  true,
}

// ParseEnvironment constructs an Environment from external input.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(s)
	if !e.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid environment: "+s)
	}
	return e, nil
}

func (e Environment) IsValid() bool  { return validEnvironments[e] }
func (e Environment) String() string { return string(e) }

func (e *Environment) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, ParseEnvironment)
}

// Domain is the application sector a device serves.
type Domain string

const (
	DomainMedical     Domain = "medical"
	DomainIndustrial  Domain = "industrial"
	DomainTransport   Domain = "transport"
	DomainWater       Domain = "water"
	DomainBody        Domain = "body"
	DomainAgriculture Domain = "agriculture"
	DomainSmartCity   Domain = "smart_city"
	DomainOther       Domain = "other"
)

var validDomains = map[Domain]bool{
	DomainMedical:     true,
	DomainIndustrial:  true,
	DomainTransport:   true,
	DomainWater:       true,
	DomainBody:        true,
	DomainAgriculture: true,
	DomainSmartCity:   true,
	DomainOther:       true,
}

// ParseDomain constructs a Domain from external input.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if !d.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid domain: "+s)
	}
	return d, nil
}

func (d Domain) IsValid() bool  { return validDomains[d] }
func (d Domain) String() string { return string(d) }

func (d *Domain) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, d, ParseDomain)
}

// PacketType classifies the event a packet carries.
type PacketType string

const (
	PacketTypeTelemetry PacketType = "telemetry"
	PacketTypeHeartbeat PacketType = "heartbeat"
	PacketTypeAlert     PacketType = "alert"
	PacketTypeControl   PacketType = "control"
)

var validPacketTypes = map[PacketType]bool{
	PacketTypeTelemetry: true,
	PacketTypeHeartbeat: true,
	PacketTypeAlert:     true,
	PacketTypeControl:   true,
}

// ParsePacketType constructs a PacketType from external input.
func ParsePacketType(s string) (PacketType, error) {
	t := PacketType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid packet_type: "+s)
	}
	return t, nil
}

func (t PacketType) IsValid() bool  { return validPacketTypes[t] }
func (t PacketType) String() string { return string(t) }

func (t *PacketType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, ParsePacketType)
}

// Priority is the processing priority of a packet. The ordering is total and
// fixed: low < normal < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityOrder is the single source of truth for priority ranks.
var priorityOrder = map[Priority]int{
	PriorityLow:      0,
	PriorityNormal:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// ParsePriority constructs a Priority from external input.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid priority: "+s)
	}
	return p, nil
}

func (p Priority) IsValid() bool {
	_, ok := priorityOrder[p]
	return ok
}

func (p Priority) String() string { return string(p) }

// Ordinal returns the rank of p, or -1 for an unknown value.
func (p Priority) Ordinal() int {
	if o, ok := priorityOrder[p]; ok {
		return o
	}
	return -1
}

// IsAtLeast reports whether p ranks at or above other.
func (p Priority) IsAtLeast(other Priority) bool {
	return p.Ordinal() >= other.Ordinal()
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, ParsePriority)
}

func unmarshalEnum[T ~string](b []byte, dst *T, parse func(string) (T, error)) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "enum value must be a string")
	}
	v, err := parse(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
