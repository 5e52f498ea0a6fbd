package packets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"

	"eeia/internal/domain"
	"eeia/internal/security"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body []byte, headers map[string]string) error
	POST(path string, body interface{}, headers map[string]string) error
	AdminHeaders() map[string]string
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers device key and packet step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &packetSteps{tc: tc}

	ctx.Step(`^device "([^"]*)" has key "([^"]*)" with secret "([^"]*)"$`, steps.deviceHasKey)
	ctx.Step(`^a "([^"]*)" packet "([^"]*)" from device "([^"]*)" in "([^"]*)" with priority "([^"]*)"$`, steps.preparePacket)
	ctx.Step(`^I send the packet signed with key "([^"]*)" and secret "([^"]*)"$`, steps.sendSigned)
	ctx.Step(`^I send the packet with a tampered signature using key "([^"]*)" and secret "([^"]*)"$`, steps.sendTampered)
	ctx.Step(`^I send the packet without a signature$`, steps.sendUnsigned)
}

type packetSteps struct {
	tc TestContext
	// Packet prepared by the last "a ... packet" step
	raw []byte
	pkt domain.Packet
}

func (s *packetSteps) deviceHasKey(ctx context.Context, deviceID, keyID, secret string) error {
	body := map[string]string{"device_id": deviceID, "key_id": keyID, "secret": secret}
	if err := s.tc.POST("/v1/devices/keys", body, s.tc.AdminHeaders()); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusCreated {
		return fmt.Errorf("register key: status %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *packetSteps) preparePacket(ctx context.Context, packetDomain, packetID, deviceID, environment, priority string) error {
	raw, err := json.Marshal(map[string]interface{}{
		"packet_id":   packetID,
		"device_id":   deviceID,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
		"environment": environment,
		"domain":      packetDomain,
		"packet_type": "telemetry",
		"priority":    priority,
		"size_bytes":  128,
		"data":        map[string]interface{}{"reading": 42},
	})
	if err != nil {
		return err
	}
	pkt, err := domain.DecodePacket(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("scenario packet is invalid: %w", err)
	}
	s.raw, s.pkt = raw, pkt
	return nil
}

func (s *packetSteps) sign(keyID, secret string) (string, error) {
	if s.raw == nil {
		return "", fmt.Errorf("no packet prepared")
	}
	return security.Sign(s.pkt, security.NewDeviceKey(s.pkt.DeviceID(), keyID, []byte(secret)))
}

func (s *packetSteps) send(keyID, signature string) error {
	headers := map[string]string{}
	if keyID != "" {
		headers["X-EEIA-Key-Id"] = keyID
	}
	if signature != "" {
		headers["X-EEIA-Signature"] = signature
	}
	return s.tc.Do(http.MethodPost, "/v1/packets/route", s.raw, headers)
}

func (s *packetSteps) sendSigned(ctx context.Context, keyID, secret string) error {
	sig, err := s.sign(keyID, secret)
	if err != nil {
		return err
	}
	return s.send(keyID, sig)
}

func (s *packetSteps) sendTampered(ctx context.Context, keyID, secret string) error {
	sig, err := s.sign(keyID, secret)
	if err != nil {
		return err
	}
	flipped := "0"
	if sig[0] == '0' {
		flipped = "1"
	}
	return s.send(keyID, flipped+sig[1:])
}

func (s *packetSteps) sendUnsigned(ctx context.Context) error {
	if s.raw == nil {
		return fmt.Errorf("no packet prepared")
	}
	return s.send("", "")
}
