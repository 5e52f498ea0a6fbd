package e2e

import (
	"github.com/cucumber/godog"

	"eeia/e2e/steps/common"
	"eeia/e2e/steps/operator"
	"eeia/e2e/steps/packets"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic requests and response assertions
	common.RegisterSteps(ctx, tc)

	// Device keys and signed packets
	packets.RegisterSteps(ctx, tc)

	// Policies and the offline queue
	operator.RegisterSteps(ctx, tc)
}
