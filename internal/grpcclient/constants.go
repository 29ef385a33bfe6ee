package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Health check configuration
	DefaultHealthCheckInterval = 5 * time.Second
	HealthCheckTimeout         = 2 * time.Second

	// Per-frame scoring calls sit on the capture path.
	DefaultCallTimeout = 500 * time.Millisecond

	// SampleRateKey carries the PCM sample rate as request metadata.
	SampleRateKey = "x-sample-rate"
)

// Inference service methods.
const (
	methodWakeScore = "/inference.WakeWordService/Score"
	methodWakeReset = "/inference.WakeWordService/Reset"
	methodVADDetect = "/inference.VADService/DetectSpeech"
	methodVADReset  = "/inference.VADService/ResetState"
)
