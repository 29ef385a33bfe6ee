package sink

// Sink defaults
const (
	DefaultPrefix     = "ikigai"
	DefaultQueueSize  = 16
	BitDepth          = 16
	wavPCMFormat      = 1
	partialFileSuffix = ".part"
)
