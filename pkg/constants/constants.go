package constants

import "time"

// Scripted playback cadence
const (
	// DefaultStepIntervalMS - Time between two scripted dialog steps
	DefaultStepIntervalMS = 4000

	// DefaultCompletionDelayMS - Grace period after the last step before the run is reported finished
	DefaultCompletionDelayMS = 2000

	// MinSimulatedLatencyMS - Lower bound of the per-step latency stand-in
	MinSimulatedLatencyMS = 500

	// SimulatedLatencySpreadMS - Width of the per-step latency stand-in range
	SimulatedLatencySpreadMS = 1000
)

// Success rate bounds
const (
	MaxSuccessRate = 100.0
	MinSuccessRate = 80.0

	// SuccessPenaltyPerSecond - Success rate points lost per second of average latency
	SuccessPenaltyPerSecond = 10.0
)

// Dialog template tokens
const (
	PolicyHolderPlaceholder = "{policy_holder_name}"
	NamePlaceholder         = "{name}"
	DefaultLocale           = "en"
)

// Demo defaults
const (
	DefaultCustomerName = "Ajay"
	WelcomeFallbackName = "Sir/Madam"
	DefaultUserID       = "demo_user"
)

// SupportedLanguages lists the language codes the assistant can be switched to.
var SupportedLanguages = []string{"en", "hi", "mr", "gu"}

// Simulated collaborator delays
const (
	MockWelcomeDelay = 500 * time.Millisecond
	MockQueryDelay   = 1000 * time.Millisecond
)

// Redis channel names
const (
	EventsChannel = "veena:events"
	EventsStream  = "veena:events:log"
)

// Assistant modes
const (
	AssistantModeMock = "mock"
	AssistantModeHTTP = "http"
	AssistantModeLLM  = "llm"
)

func MillisecondsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// IsSupportedLanguage reports whether lang is one of SupportedLanguages.
func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
