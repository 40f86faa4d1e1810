package permission_test

import (
	"testing"

	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/permission"
	"github.com/stretchr/testify/assert"
)

func TestAdvanceFollowsGrants(t *testing.T) {
	checker := permission.NewStaticChecker(permission.Capabilities{})
	flow := permission.NewFlow(checker, logger.Nop())

	assert.Equal(t, permission.StepIntro, flow.Step())
	assert.Equal(t, permission.StepOverlay, flow.Advance())

	// Not granted yet: stays put.
	assert.Equal(t, permission.StepOverlay, flow.Advance())

	checker.Set(permission.Capabilities{Overlay: true})
	assert.Equal(t, permission.StepWriteSettings, flow.Advance())
	assert.Equal(t, permission.StepWriteSettings, flow.Advance())

	checker.Set(permission.Capabilities{Overlay: true, WriteSettings: true})
	assert.Equal(t, permission.StepDone, flow.Advance())
	assert.Equal(t, permission.StepDone, flow.Advance())
}

func TestRecheckSkipsGrantedSteps(t *testing.T) {
	checker := permission.NewStaticChecker(permission.Capabilities{})
	flow := permission.NewFlow(checker, logger.Nop())

	// Recheck never leaves the intro screen on its own.
	checker.Set(permission.Capabilities{Overlay: true, WriteSettings: true})
	assert.Equal(t, permission.StepIntro, flow.Recheck())

	flow.Advance()
	assert.Equal(t, permission.StepDone, flow.Recheck())
}

func TestRecheckStopsAtFirstMissingGrant(t *testing.T) {
	checker := permission.NewStaticChecker(permission.Capabilities{WriteSettings: true})
	flow := permission.NewFlow(checker, logger.Nop())
	flow.Advance()

	assert.Equal(t, permission.StepOverlay, flow.Recheck())

	checker.Set(permission.Capabilities{Overlay: true, WriteSettings: true})
	assert.Equal(t, permission.StepDone, flow.Recheck())
}

func TestAlreadyGrantedStartsDone(t *testing.T) {
	checker := permission.NewStaticChecker(permission.Capabilities{Overlay: true, WriteSettings: true})
	flow := permission.NewFlow(checker, logger.Nop())

	assert.Equal(t, permission.StepDone, flow.Step())
	assert.Equal(t, "done", flow.Step().String())
}
