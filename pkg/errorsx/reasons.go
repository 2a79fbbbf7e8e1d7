package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"
	ReasonConfig  ReasonCode = "config"

	ReasonSTTEngine  ReasonCode = "stt_engine"
	ReasonSTTNoMatch ReasonCode = "stt_no_match"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonTTSPrimary  ReasonCode = "tts_primary"
	ReasonTTSFallback ReasonCode = "tts_fallback"

	ReasonStoreWrite    ReasonCode = "store_write"
	ReasonArtifactWrite ReasonCode = "artifact_write"

	ReasonTransportSend   ReasonCode = "transport_send"
	ReasonWorkerQueueFull ReasonCode = "worker_queue_full"
)
