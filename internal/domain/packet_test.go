package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "eeia/pkg/domain-errors"
)

func validInput() PacketInput {
	return PacketInput{
		PacketID:    "pkt-00000001",
		DeviceID:    "dev-ecg-01",
		CreatedAt:   time.Date(2025, 3, 1, 12, 30, 0, 123456789, time.UTC),
		Environment: EnvironmentGround,
		Domain:      DomainMedical,
		PacketType:  PacketTypeTelemetry,
		Priority:    PriorityHigh,
		SizeBytes:   512,
		Data:        map[string]any{"hr": 72, "spo2": 98.5, "leads": []any{"I", "II"}},
		Metadata:    map[string]any{"site": map[string]any{"ward": "icu", "bed": 4}},
	}
}

func TestNewPacket_Invariants(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		pkt, err := NewPacket(PacketInput{
			PacketID:    "pkt-00000002",
			DeviceID:    "dev",
			Environment: EnvironmentAir,
		})
		require.NoError(t, err)
		assert.Equal(t, DomainOther, pkt.Domain())
		assert.Equal(t, PacketTypeTelemetry, pkt.Type())
		assert.Equal(t, PriorityNormal, pkt.Priority())
		assert.False(t, pkt.CreatedAt().IsZero())
		assert.Empty(t, pkt.Data())
	})

	cases := map[string]func(*PacketInput){
		"short packet id":     func(in *PacketInput) { in.PacketID = "pkt-1" },
		"long packet id":      func(in *PacketInput) { in.PacketID = strings.Repeat("p", 65) },
		"short device id":     func(in *PacketInput) { in.DeviceID = "dv" },
		"negative size":       func(in *PacketInput) { in.SizeBytes = -1 },
		"oversized":           func(in *PacketInput) { in.SizeBytes = MaxPacketSize + 1 },
		"missing environment": func(in *PacketInput) { in.Environment = "" },
		"unknown environment": func(in *PacketInput) { in.Environment = "water" },
		"unknown domain":      func(in *PacketInput) { in.Domain = "energy" },
		"unknown priority":    func(in *PacketInput) { in.Priority = "urgent" },
		"unencodable data":    func(in *PacketInput) { in.Data = map[string]any{"ch": make(chan int)} },
	}
	for name, mutate := range cases {
		t.Run("rejects "+name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := NewPacket(in)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("accepts size at cap", func(t *testing.T) {
		in := validInput()
		in.SizeBytes = MaxPacketSize
		_, err := NewPacket(in)
		require.NoError(t, err)
	})
}

func TestPacket_Immutable(t *testing.T) {
	pkt, err := NewPacket(validInput())
	require.NoError(t, err)

	data := pkt.Data()
	data["hr"] = "tampered"
	data["leads"].([]any)[0] = "X"
	meta := pkt.Metadata()
	meta["site"].(map[string]any)["ward"] = "er"

	assert.Equal(t, json.Number("72"), pkt.Data()["hr"])
	assert.Equal(t, "I", pkt.Data()["leads"].([]any)[0])
	assert.Equal(t, "icu", pkt.Metadata()["site"].(map[string]any)["ward"])
}

func TestPacket_JSONRoundTrip(t *testing.T) {
	pkt, err := NewPacket(validInput())
	require.NoError(t, err)

	raw, err := json.Marshal(pkt)
	require.NoError(t, err)

	var decoded Packet
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, pkt.Equal(decoded))
}

func TestDecodePacket_Strict(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := DecodePacket(strings.NewReader(`{"packet_id":"pkt-00000001","device_id":"dev","environment":"ground","rogue":true}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("bad enum", func(t *testing.T) {
		_, err := DecodePacket(strings.NewReader(`{"packet_id":"pkt-00000001","device_id":"dev","environment":"ground","priority":"urgent"}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("trailing data", func(t *testing.T) {
		const body = `{"packet_id":"pkt-00000001","device_id":"dev","environment":"ground"}`
		for _, tail := range []string{`{"packet_id":"pkt-00000002"}`, `garbage`, `}`} {
			_, err := DecodePacket(strings.NewReader(body + tail))
			require.Error(t, err, tail)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), tail)
		}

		_, err := DecodePacket(strings.NewReader(body + "\n  \n"))
		require.NoError(t, err, "trailing whitespace is allowed")
	})

	t.Run("minimal packet", func(t *testing.T) {
		pkt, err := DecodePacket(strings.NewReader(`{"packet_id":"pkt-00000001","device_id":"dev","environment":"orbit","created_at":"2025-01-01T00:00:00Z","data":{"big":12345678901234567890}}`))
		require.NoError(t, err)
		assert.Equal(t, EnvironmentOrbit, pkt.Environment())
		assert.Equal(t, json.Number("12345678901234567890"), pkt.Data()["big"])
	})
}

func TestPriority_Ordering(t *testing.T) {
	ordered := []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
	for i, p := range ordered {
		assert.Equal(t, i, p.Ordinal())
	}
	assert.True(t, PriorityCritical.IsAtLeast(PriorityHigh))
	assert.False(t, PriorityNormal.IsAtLeast(PriorityHigh))
	assert.Equal(t, -1, Priority("urgent").Ordinal())
}
