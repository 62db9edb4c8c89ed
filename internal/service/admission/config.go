package admission

import "time"

// Config tunes the admission checks.
type Config struct {
	MaxEventSize        int
	MaxCustomParams     int
	MaxParamNameLength  int
	MaxParamValueLength int
	ThrottleWindow      time.Duration
	AllowLocalhost      bool
	AllowFileProtocol   bool
	AllowIframes        bool
	BotDetection        bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxEventSize:        100 * 1024,
		MaxCustomParams:     10,
		MaxParamNameLength:  100,
		MaxParamValueLength: 1000,
		ThrottleWindow:      60 * time.Second,
		AllowLocalhost:      false,
		AllowFileProtocol:   false,
		AllowIframes:        false,
		BotDetection:        true,
	}
}
