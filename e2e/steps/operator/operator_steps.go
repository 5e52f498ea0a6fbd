package operator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	DELETE(path string, headers map[string]string) error
	AdminHeaders() map[string]string
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers policy and offline queue step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &operatorSteps{tc: tc}

	ctx.Step(`^a policy "([^"]*)" routes domain "([^"]*)" to "([^"]*)"$`, steps.policyRoutesDomain)
	ctx.Step(`^I remove policy "([^"]*)"$`, steps.removePolicy)
	ctx.Step(`^I revoke key "([^"]*)" of device "([^"]*)"$`, steps.revokeKey)
	ctx.Step(`^I request the queue status$`, steps.queueStatus)
	ctx.Step(`^I drain the offline queue$`, steps.drainQueue)
	ctx.Step(`^I call an admin endpoint without a token$`, steps.adminWithoutToken)
}

type operatorSteps struct {
	tc TestContext
}

func (s *operatorSteps) policyRoutesDomain(ctx context.Context, policyID, matchDomain, target string) error {
	body := map[string]interface{}{
		"policy_id":       policyID,
		"name":            policyID,
		"match_domain":    matchDomain,
		"target_endpoint": target,
	}
	if err := s.tc.POST("/v1/policies", body, s.tc.AdminHeaders()); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return fmt.Errorf("upsert policy: status %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *operatorSteps) removePolicy(ctx context.Context, policyID string) error {
	return s.tc.DELETE("/v1/policies/"+policyID, s.tc.AdminHeaders())
}

func (s *operatorSteps) revokeKey(ctx context.Context, keyID, deviceID string) error {
	return s.tc.DELETE(fmt.Sprintf("/v1/devices/%s/keys/%s", deviceID, keyID), s.tc.AdminHeaders())
}

func (s *operatorSteps) queueStatus(ctx context.Context) error {
	return s.tc.GET("/v1/queue", nil)
}

func (s *operatorSteps) drainQueue(ctx context.Context) error {
	return s.tc.POST("/v1/queue/drain", map[string]string{}, s.tc.AdminHeaders())
}

func (s *operatorSteps) adminWithoutToken(ctx context.Context) error {
	return s.tc.POST("/v1/queue/drain", map[string]string{}, nil)
}
