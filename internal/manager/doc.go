// Package manager owns the single model session of the service and
// coordinates generation against it. It is structured into small files by
// concern:
//
//   - manager.go: core Manager type, constructor, readiness.
//   - config.go: ManagerConfig and package defaults.
//   - types.go: session state machine and the loaded Session.
//   - load.go: the load sequence (tokenizer, device, backend, quantization).
//   - device.go: accelerator detection.
//   - errors.go: error types carrying HTTP status codes.
//   - admission.go: bounded FIFO queue with a single in-flight generation.
//   - prompt.go: message validation, system injection, prompt rendering.
//   - generate.go: synchronous chat completion.
//   - stream.go: streaming chat completion (producer/consumer over SSE).
//   - status_report.go: /status, /health and model list projections.
//   - sanity.go: dependency checks used by `chatd check`.
//   - metrics.go: Prometheus collectors for load and generation.
//
// Backends:
//
//   - native: pure Go reference runtime (internal/backend/native).
//   - llama: go-llama.cpp, enabled with `-tags=llama`. Without the tag the
//     loader reports backend.ErrUnavailable.
//
// External packages should use public methods only (New/NewWithConfig, Load,
// Ready, ChatCompletion, StreamChatCompletion, Status, Health, Models).
package manager
