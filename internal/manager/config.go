package manager

import (
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/backend"
	"chatd/internal/memory"
	"chatd/internal/quant"
	"chatd/internal/sampling"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultMaxTokens     = 512
	defaultModelName     = "lg-exaone"
	defaultStreamBuffer  = 64

	DefaultSystemPrompt = "한국어로 간결하고 정확하게 답변하세요."
	DefaultFallbackText = "안녕하세요! 무엇을 도와드릴까요?"
)

// Device choices accepted in ManagerConfig.Device.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// BackendAuto picks the backend from the model path.
const BackendAuto = "auto"

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// ModelPath is a native model directory or a .gguf file.
	ModelPath string
	// ModelName is the served label reported by /health and /v1/models.
	ModelName string
	// Backend is auto, native or llama.
	Backend string
	// Device is auto, cpu or gpu.
	Device      string
	Threads     int
	ContextSize int

	EnableDynamicInt8 bool
	SafeQuant         bool
	QuantHeadroom     float64
	// MemoryProbe reports available host memory; nil uses /proc.
	MemoryProbe memory.Probe

	MaxQueueDepth int
	MaxWait       time.Duration
	// InferTimeout bounds one generation; 0 disables the limit.
	InferTimeout time.Duration

	DefaultSystemPrompt string
	FallbackText        string
	DefaultMaxTokens    int
	// MinResponseRunes is the shortest answer kept before falling back.
	MinResponseRunes int
	Sampling         sampling.Config
	StreamBuffer     int

	// Loaders maps backend names to loaders; nil entries use the built-in
	// ones.
	Loaders   map[string]backend.Loader
	Logger    *zerolog.Logger
	Publisher EventPublisher
}

func (c *ManagerConfig) applyDefaults() {
	if c.ModelName == "" {
		c.ModelName = defaultModelName
	}
	if c.Backend == "" {
		c.Backend = BackendAuto
	}
	if c.Device == "" {
		c.Device = DeviceAuto
	}
	if c.QuantHeadroom <= 0 {
		c.QuantHeadroom = quant.DefaultHeadroom
	}
	if c.MemoryProbe == nil {
		c.MemoryProbe = memory.System()
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.DefaultSystemPrompt == "" {
		c.DefaultSystemPrompt = DefaultSystemPrompt
	}
	if c.FallbackText == "" {
		c.FallbackText = DefaultFallbackText
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = defaultMaxTokens
	}
	if c.MinResponseRunes <= 0 {
		c.MinResponseRunes = 1
	}
	if c.Sampling == (sampling.Config{}) {
		c.Sampling = sampling.Defaults
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = defaultStreamBuffer
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
}
