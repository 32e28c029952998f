package expert

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/pkg/types"
)

// turnRe captures "turn on the kitchen light" and "turn the heating off":
// the state may precede or follow the device.
var turnRe = regexp.MustCompile(`(?i)\b(?:turn|switch)\s+(?:(on|off)\s+)?(?:the\s+|my\s+)?([a-z][a-z ]*?)(?:\s+(on|off))?\s*$`)

// setTempRe captures "set the thermostat to 21 degrees".
var setTempRe = regexp.MustCompile(`(?i)\bset\s+(?:the\s+|my\s+)?([a-z][a-z ]+?)\s+to\s+(\d+)\s*(?:degrees|°)?c?\b`)

// HomeExpert issues device commands to the home-automation collaborator.
type HomeExpert struct {
	tuning tuning
	api    *apiclient.Client
	log    zerolog.Logger
}

// NewHomeExpert creates the home-automation expert.
func NewHomeExpert(ft config.ExpertTuning, api *apiclient.Client) *HomeExpert {
	builtin := tuning{
		triggers: []string{"turn on the", "turn off the", "turn on my", "turn off my", "switch on", "switch off"},
		keywords: []string{"light", "lights", "lamp", "thermostat", "heating", "plug", "blinds"},
	}
	return &HomeExpert{
		tuning: resolveTuning(builtin, ft),
		api:    api,
		log:    log.With().Str("component", "expert").Str("expert", "home").Logger(),
	}
}

// Name implements Expert.
func (e *HomeExpert) Name() string { return "home" }

// CanHandle implements Expert.
func (e *HomeExpert) CanHandle(query string) float64 {
	if setTempRe.MatchString(query) {
		return e.tuning.triggerScore
	}
	return e.tuning.score(query)
}

// Execute implements Expert.
func (e *HomeExpert) Execute(ctx context.Context, query, userID string) types.ExecutionResult {
	device, state, ok := extractDeviceCommand(query)
	if !ok {
		// No parseable device: report what we understood instead of
		// guessing a device to flip.
		return types.ExecutionResult{
			Success:     true,
			Message:     "I recognized a home-automation request but couldn't tell which device you meant. Could you name the device?",
			ActionTaken: "home_clarification_needed",
		}
	}

	err := e.api.SetDeviceState(ctx, apiclient.DeviceCommand{
		UserID: userID,
		Device: device,
		State:  state,
	})
	if err != nil {
		e.log.Error().Err(err).Str("device", device).Str("state", state).Msg("device command failed")
		return failure(fmt.Sprintf("I couldn't reach the %s right now.", device), err)
	}

	return types.ExecutionResult{
		Success:     true,
		Message:     fmt.Sprintf("Done — %s is now %s.", device, state),
		ActionTaken: "device_command_sent",
	}
}

// extractDeviceCommand parses the device and target state out of the query.
func extractDeviceCommand(query string) (device, state string, ok bool) {
	if m := setTempRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(strings.ToLower(m[1])), m[2] + "C", true
	}
	if m := turnRe.FindStringSubmatch(query); m != nil {
		state = strings.ToLower(m[1])
		if state == "" {
			state = strings.ToLower(m[3])
		}
		device = strings.TrimSpace(strings.ToLower(m[2]))
		if state != "" && device != "" {
			return device, state, true
		}
	}
	return "", "", false
}

var _ Expert = (*HomeExpert)(nil)
