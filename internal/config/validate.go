package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationResult separates configuration problems that must block startup
// (Fatals) from ones that are safe to clamp and continue past (Warnings).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// a flat list to log.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// ValidateTiered checks the config for invalid values. Dangerous zero/out-of-range
// values that would cause panics or violate the spec's hard bounds are clamped
// to safe defaults and reported as warnings; structurally invalid values (bad
// listen address, inverted bounds) are fatal and block startup.
func (c *Config) ValidateTiered() ValidationResult {
	var res ValidationResult

	if c.ListenAddr != "" && net.ParseIP(c.ListenAddr) == nil {
		res.Fatals = append(res.Fatals, fmt.Errorf("listen_addr %q is not a valid IP address", c.ListenAddr))
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		res.Fatals = append(res.Fatals, fmt.Errorf("listen_port %d out of range [1,65535]", c.ListenPort))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		res.Warnings = append(res.Warnings, fmt.Errorf("log_level %q is not valid, defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		res.Warnings = append(res.Warnings, fmt.Errorf("log_format %q is not valid, defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	// Hard bounds from the spec: FPS in [1,30], quality in [1,100].
	if c.FrameMinFPS < 1 {
		res.Warnings = append(res.Warnings, fmt.Errorf("frame_min_fps %d below hard floor 1, clamping", c.FrameMinFPS))
		c.FrameMinFPS = 1
	}
	if c.FrameMaxFPS > 30 {
		res.Warnings = append(res.Warnings, fmt.Errorf("frame_max_fps %d above hard ceiling 30, clamping", c.FrameMaxFPS))
		c.FrameMaxFPS = 30
	}
	if c.FrameMaxFPS < c.FrameMinFPS {
		res.Fatals = append(res.Fatals, fmt.Errorf("frame_max_fps %d is below frame_min_fps %d", c.FrameMaxFPS, c.FrameMinFPS))
	}
	if c.FrameInitialFPS < c.FrameMinFPS || c.FrameInitialFPS > c.FrameMaxFPS {
		res.Warnings = append(res.Warnings, fmt.Errorf("frame_initial_fps %d outside [%d,%d], clamping", c.FrameInitialFPS, c.FrameMinFPS, c.FrameMaxFPS))
		if c.FrameInitialFPS < c.FrameMinFPS {
			c.FrameInitialFPS = c.FrameMinFPS
		} else {
			c.FrameInitialFPS = c.FrameMaxFPS
		}
	}

	if c.FrameMinQuality < 1 {
		c.FrameMinQuality = 1
	}
	if c.FrameMaxQuality > 100 {
		c.FrameMaxQuality = 100
	}
	if c.FrameMaxQuality < c.FrameMinQuality {
		res.Fatals = append(res.Fatals, fmt.Errorf("frame_max_quality %d is below frame_min_quality %d", c.FrameMaxQuality, c.FrameMinQuality))
	}
	if c.FrameInitQuality < c.FrameMinQuality || c.FrameInitQuality > c.FrameMaxQuality {
		res.Warnings = append(res.Warnings, fmt.Errorf("frame_initial_quality %d outside [%d,%d], clamping", c.FrameInitQuality, c.FrameMinQuality, c.FrameMaxQuality))
		if c.FrameInitQuality < c.FrameMinQuality {
			c.FrameInitQuality = c.FrameMinQuality
		} else {
			c.FrameInitQuality = c.FrameMaxQuality
		}
	}
	if c.FrameScale <= 0 || c.FrameScale > 1.0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("frame_scale %v outside (0,1.0], clamping to 1.0", c.FrameScale))
		c.FrameScale = 1.0
	}

	if c.CommandQueueCapacity < 1 {
		res.Warnings = append(res.Warnings, fmt.Errorf("command_queue_capacity %d below minimum 1, clamping", c.CommandQueueCapacity))
		c.CommandQueueCapacity = 1
	}
	if c.CommandTimeoutSeconds <= 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("command_timeout_seconds %d must be positive, defaulting to 30", c.CommandTimeoutSeconds))
		c.CommandTimeoutSeconds = 30
	}

	if c.PairingChallengeTTLSeconds <= 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("pairing_challenge_ttl_seconds %d must be positive, defaulting to 300", c.PairingChallengeTTLSeconds))
		c.PairingChallengeTTLSeconds = 300
	}
	if c.SessionMaxDurationSeconds <= 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("session_max_duration_seconds %d must be positive, defaulting to 3600", c.SessionMaxDurationSeconds))
		c.SessionMaxDurationSeconds = 3600
	}

	for _, f := range []*float64{&c.RateRequestsPerSecond, &c.RateCommandsPerSecond, &c.RateWSMessagesPerSecond} {
		if *f <= 0 {
			res.Warnings = append(res.Warnings, fmt.Errorf("rate value %v must be positive, clamping to 1", *f))
			*f = 1
		}
	}
	if c.RateBurstMultiplier <= 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("rate_burst_multiplier %v must be positive, defaulting to 1.5", c.RateBurstMultiplier))
		c.RateBurstMultiplier = 1.5
	}

	return res
}
