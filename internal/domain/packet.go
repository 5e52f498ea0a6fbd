package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"time"
	"unicode/utf8"

	dErrors "eeia/pkg/domain-errors"
)

// Field bounds for packets and devices.
const (
	PacketIDMinLen = 8
	PacketIDMaxLen = 64
	DeviceIDMinLen = 3
	DeviceIDMaxLen = 64
	MaxPacketSize  = 10_000_000
)

// PacketInput carries the raw fields used to build a Packet. Zero values for
// Domain, PacketType, Priority and CreatedAt take their defaults.
type PacketInput struct {
	PacketID    string
	DeviceID    string
	CreatedAt   time.Time
	Environment Environment
	Domain      Domain
	PacketType  PacketType
	Priority    Priority
	SizeBytes   int64
	Data        map[string]any
	Metadata    map[string]any
}

// Packet is one unit of telemetry or event data from an edge device.
//
// Invariant: a Packet is immutable once constructed. Fields are unexported,
// payload maps are held in JSON normal form (json.Number for numbers) and
// accessors hand out copies.
type Packet struct {
	id          string
	deviceID    string
	createdAt   time.Time
	environment Environment
	domain      Domain
	packetType  PacketType
	priority    Priority
	sizeBytes   int64
	data        map[string]any
	metadata    map[string]any
}

// NewPacket validates in and builds an immutable Packet.
//
// Errors: CodeValidation for any out-of-range or unsupported field.
func NewPacket(in PacketInput) (Packet, error) {
	if in.Domain == "" {
		in.Domain = DomainOther
	}
	if in.PacketType == "" {
		in.PacketType = PacketTypeTelemetry
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	// Size validation first
	if n := utf8.RuneCountInString(in.PacketID); n < PacketIDMinLen || n > PacketIDMaxLen {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "packet_id must be 8-64 characters")
	}
	if err := validateDeviceID(in.DeviceID); err != nil {
		return Packet{}, err
	}
	if in.SizeBytes < 0 || in.SizeBytes > MaxPacketSize {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "size_bytes must be between 0 and 10000000")
	}

	// Required
	if in.Environment == "" {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "environment is required")
	}

	// Syntax
	if !in.Environment.IsValid() {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "invalid environment: "+in.Environment.String())
	}
	if !in.Domain.IsValid() {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "invalid domain: "+in.Domain.String())
	}
	if !in.PacketType.IsValid() {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "invalid packet_type: "+in.PacketType.String())
	}
	if !in.Priority.IsValid() {
		return Packet{}, dErrors.New(dErrors.CodeValidation, "invalid priority: "+in.Priority.String())
	}

	data, err := normalizePayload(in.Data)
	if err != nil {
		return Packet{}, dErrors.Wrap(err, dErrors.CodeValidation, "data must be JSON-encodable")
	}
	metadata, err := normalizePayload(in.Metadata)
	if err != nil {
		return Packet{}, dErrors.Wrap(err, dErrors.CodeValidation, "metadata must be JSON-encodable")
	}

	return Packet{
		id:          in.PacketID,
		deviceID:    in.DeviceID,
		createdAt:   in.CreatedAt.UTC(),
		environment: in.Environment,
		domain:      in.Domain,
		packetType:  in.PacketType,
		priority:    in.Priority,
		sizeBytes:   in.SizeBytes,
		data:        data,
		metadata:    metadata,
	}, nil
}

func (p Packet) ID() string               { return p.id }
func (p Packet) DeviceID() string         { return p.deviceID }
func (p Packet) CreatedAt() time.Time     { return p.createdAt }
func (p Packet) Environment() Environment { return p.environment }
func (p Packet) Domain() Domain           { return p.domain }
func (p Packet) Type() PacketType         { return p.packetType }
func (p Packet) Priority() Priority       { return p.priority }
func (p Packet) SizeBytes() int64         { return p.sizeBytes }

// Data returns a copy of the payload map.
func (p Packet) Data() map[string]any { return copyMap(p.data) }

// Metadata returns a copy of the side-channel map.
func (p Packet) Metadata() map[string]any { return copyMap(p.metadata) }

// Input returns the packet's fields as a fresh PacketInput, for deriving
// modified packets.
func (p Packet) Input() PacketInput {
	return PacketInput{
		PacketID:    p.id,
		DeviceID:    p.deviceID,
		CreatedAt:   p.createdAt,
		Environment: p.environment,
		Domain:      p.domain,
		PacketType:  p.packetType,
		Priority:    p.priority,
		SizeBytes:   p.sizeBytes,
		Data:        p.Data(),
		Metadata:    p.Metadata(),
	}
}

// IsZero reports whether p was never constructed.
func (p Packet) IsZero() bool { return p.id == "" }

// Equal compares two packets field for field.
func (p Packet) Equal(o Packet) bool {
	return p.id == o.id &&
		p.deviceID == o.deviceID &&
		p.createdAt.Equal(o.createdAt) &&
		p.environment == o.environment &&
		p.domain == o.domain &&
		p.packetType == o.packetType &&
		p.priority == o.priority &&
		p.sizeBytes == o.sizeBytes &&
		reflect.DeepEqual(p.data, o.data) &&
		reflect.DeepEqual(p.metadata, o.metadata)
}

// LogValue keeps payload contents out of logs.
func (p Packet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("packet_id", p.id),
		slog.String("device_id", p.deviceID),
		slog.String("environment", string(p.environment)),
		slog.String("domain", string(p.domain)),
		slog.String("packet_type", string(p.packetType)),
		slog.String("priority", string(p.priority)),
	)
}

type packetWire struct {
	PacketID    string         `json:"packet_id"`
	DeviceID    string         `json:"device_id"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	Environment Environment    `json:"environment"`
	Domain      Domain         `json:"domain,omitempty"`
	PacketType  PacketType     `json:"packet_type,omitempty"`
	Priority    Priority       `json:"priority,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Data        map[string]any `json:"data"`
	Metadata    map[string]any `json:"metadata"`
}

// MarshalJSON encodes every field; the result decodes back to an equal Packet.
func (p Packet) MarshalJSON() ([]byte, error) {
	created := p.createdAt
	return json.Marshal(packetWire{
		PacketID:    p.id,
		DeviceID:    p.deviceID,
		CreatedAt:   &created,
		Environment: p.environment,
		Domain:      p.domain,
		PacketType:  p.packetType,
		Priority:    p.priority,
		SizeBytes:   p.sizeBytes,
		Data:        p.data,
		Metadata:    p.metadata,
	})
}

// UnmarshalJSON decodes strictly: unknown fields and out-of-range values are
// rejected with CodeValidation.
func (p *Packet) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var w packetWire
	if err := dec.Decode(&w); err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid packet")
	}
	if err := requireEOF(dec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid packet")
	}
	in := PacketInput{
		PacketID:    w.PacketID,
		DeviceID:    w.DeviceID,
		Environment: w.Environment,
		Domain:      w.Domain,
		PacketType:  w.PacketType,
		Priority:    w.Priority,
		SizeBytes:   w.SizeBytes,
		Data:        w.Data,
		Metadata:    w.Metadata,
	}
	if w.CreatedAt != nil {
		in.CreatedAt = *w.CreatedAt
	}
	pkt, err := NewPacket(in)
	if err != nil {
		return err
	}
	*p = pkt
	return nil
}

// DecodePacket reads one strictly validated packet from r.
func DecodePacket(r io.Reader) (Packet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Packet{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "read packet")
	}
	var p Packet
	if err := p.UnmarshalJSON(raw); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// requireEOF fails when anything but whitespace follows the decoded value.
func requireEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

func validateDeviceID(id string) error {
	if n := utf8.RuneCountInString(id); n < DeviceIDMinLen || n > DeviceIDMaxLen {
		return dErrors.New(dErrors.CodeValidation, "device_id must be 3-64 characters")
	}
	return nil
}

// normalizePayload converts m to its JSON normal form so an encode/decode cycle
// yields a DeepEqual map.
func normalizePayload(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
