package types

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	// Message role: system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: 안녕
	Content string `json:"content" example:"안녕"`
}

// StreamOptions tune streaming responses.
type StreamOptions struct {
	// Emit a usage-only chunk before [DONE].
	// example: true
	IncludeUsage bool `json:"include_usage,omitempty" example:"true"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	// Model label echoed back in the response. If empty, the served label is used.
	// example: lg-exaone
	Model string `json:"model,omitempty" example:"lg-exaone"`
	// Conversation so far. A default system instruction is added when none is present.
	Messages []ChatMessage `json:"messages"`
	// Maximum number of new tokens. Capped by the context budget; 0 uses the server default.
	// example: 512
	MaxTokens *int `json:"max_tokens,omitempty" example:"512"`
	// Sampling temperature. 0 selects greedy decoding.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Random seed for reproducibility; 0 or omitted lets the server choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// Stream the response as server-sent events.
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
	// Options for streaming responses.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	// example: 24
	PromptTokens int `json:"prompt_tokens" example:"24"`
	// example: 9
	CompletionTokens int `json:"completion_tokens" example:"9"`
	// example: 33
	TotalTokens int `json:"total_tokens" example:"33"`
}

// ChatCompletionChoice is one choice of a non-streaming response.
type ChatCompletionChoice struct {
	Index   int         `json:"index"`
	Message ChatMessage `json:"message"`
	// stop or length.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
}

// ChatCompletionResponse is returned when stream is false.
type ChatCompletionResponse struct {
	// example: chatcmpl-1f0c7a52-3d5e-4a77-9b0e-3f9d2c1e8a41
	ID string `json:"id" example:"chatcmpl-1f0c7a52-3d5e-4a77-9b0e-3f9d2c1e8a41"`
	// example: chat.completion
	Object string `json:"object" example:"chat.completion"`
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// example: lg-exaone
	Model   string                 `json:"model" example:"lg-exaone"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChunkDelta carries the incremental content of a stream chunk.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatCompletionChunkChoice is one choice of a stream chunk.
type ChatCompletionChunkChoice struct {
	Index int        `json:"index"`
	Delta ChunkDelta `json:"delta"`
	// Null until the terminal chunk.
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one server-sent event of a streaming response.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object" example:"chat.completion.chunk"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	// Present only on the usage chunk when stream_options.include_usage is set.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamError is the payload of an SSE error frame.
type StreamError struct {
	Error ErrorResponse `json:"error"`
}

// Object names used in responses.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectList                = "list"
	ObjectModel               = "model"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Served model label, present once the model is loaded.
	// example: lg-exaone
	ModelName string `json:"model_name,omitempty" example:"lg-exaone"`
}

// RootResponse is the service banner returned by GET /.
type RootResponse struct {
	// example: Local LLM Service
	Message string `json:"message" example:"Local LLM Service"`
	// example: 1.3.0
	Version     string            `json:"version" example:"1.3.0"`
	ModelLoaded bool              `json:"model_loaded"`
	Endpoints   map[string]string `json:"endpoints"`
}

// ModelList is returned by GET /v1/models.
type ModelList struct {
	Object string      `json:"object" example:"list"`
	Data   []ModelCard `json:"data"`
}

// ModelCard describes the served model in OpenAI format.
type ModelCard struct {
	// example: lg-exaone
	ID      string `json:"id" example:"lg-exaone"`
	Object  string `json:"object" example:"model"`
	Created int64  `json:"created"`
	// example: chatd
	OwnedBy string `json:"owned_by" example:"chatd"`
	// Backend serving the model (native or llama).
	// example: native
	Backend string `json:"backend,omitempty" example:"native"`
	// Whether the model finished loading.
	Ready bool `json:"ready"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QuantizationStatus summarizes the quantization run at load.
type QuantizationStatus struct {
	// safe_layerwise, bulk or skipped.
	// example: safe_layerwise
	Mode string `json:"mode" example:"safe_layerwise"`
	// Why quantization was skipped.
	// example: gpu device
	Reason string `json:"reason,omitempty" example:"gpu device"`
	// example: fbgemm
	Engine              string `json:"engine,omitempty" example:"fbgemm"`
	EstimatedBytes      int64  `json:"estimated_bytes"`
	AvailableBytes      int64  `json:"available_bytes,omitempty"`
	MemoryKnown         bool   `json:"memory_known"`
	QuantizedLayers     int    `json:"quantized_layers"`
	FailedLayers        int    `json:"failed_layers"`
	PeakTransientLayers int    `json:"peak_transient_layers"`
	DurationMS          int64  `json:"duration_ms"`
	BytesAfter          int64  `json:"bytes_after"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session state: unloaded, loading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// example: lg-exaone
	Model string `json:"model" example:"lg-exaone"`
	// example: /models/exaone
	Path string `json:"path,omitempty" example:"/models/exaone"`
	// example: native
	Backend string `json:"backend,omitempty" example:"native"`
	// example: cpu
	Device string `json:"device,omitempty" example:"cpu"`
	// example: float32
	DType string `json:"dtype,omitempty" example:"float32"`
	// Tokenizer implementation: fast or slow.
	// example: fast
	Tokenizer string `json:"tokenizer,omitempty" example:"fast"`
	// Resolved max length (tokenizer limit clamped to the recommended range).
	// example: 4096
	MaxLength int `json:"max_length,omitempty" example:"4096"`
	// Model position limit, 0 when unknown.
	// example: 2048
	PositionLimit int `json:"position_limit,omitempty" example:"2048"`
	// Estimated resident model size in bytes.
	ModelBytes   int64               `json:"model_bytes,omitempty"`
	Quantization *QuantizationStatus `json:"quantization,omitempty"`
	// Current queue length for incoming requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight generations.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Load error when state is failed.
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total completed generations.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
}
