package quant

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatd/internal/memory"
)

var (
	quantLayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "quant",
			Name:      "layers",
			Help:      "Dense layers handled by the last quantization run",
		},
		[]string{"result"},
	)

	quantPeakTransient = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "quant",
			Name:      "peak_transient_layers",
			Help:      "Maximum float layers held alongside their int8 copy during the last run",
		},
	)

	quantDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "quant",
			Name:      "duration_seconds",
			Help:      "Wall time of the last quantization run",
		},
	)
)

func init() {
	prometheus.MustRegister(quantLayers, quantPeakTransient, quantDuration)
}

// Report summarizes one quantization run.
type Report struct {
	Plan          Plan          `json:"plan"`
	Quantized     int           `json:"quantized_layers"`
	Failed        int           `json:"failed_layers"`
	PeakTransient int           `json:"peak_transient_layers"`
	Duration      time.Duration `json:"duration_ns"`
	BytesBefore   int64         `json:"bytes_before"`
	BytesAfter    int64         `json:"bytes_after"`
}

// Apply plans and runs quantization on m. It never fails: every problem is
// logged and leaves the affected layers (or the whole model) in float form.
func Apply(m Model, device string, opts Options) Report {
	log := opts.logger()
	before := memory.EstimateModelBytes(m.Graph())
	plan := PlanFor(device, before, opts)
	rep := Report{Plan: plan, BytesBefore: before, BytesAfter: before}
	if plan.Skipped() {
		log.Info().Str("reason", plan.Reason).Msg("quantization skipped")
		return rep
	}

	start := time.Now()
	ex := newExecutor(opts, plan.Engine)
	switch plan.Mode {
	case ModeSafeLayerwise:
		ex.layerwise(m.Graph(), m.Graph().Name())
	case ModeBulk:
		if err := ex.bulk(m); err != nil {
			log.Warn().Err(err).Msg("bulk quantization failed, model left in float form")
		}
	}
	rep.Duration = time.Since(start)
	rep.Failed = ex.failed
	rep.PeakTransient = ex.live.peak
	rep.Quantized = CountQuantized(m.Graph())
	rep.BytesAfter = memory.EstimateModelBytes(m.Graph())

	quantLayers.WithLabelValues("quantized").Set(float64(rep.Quantized))
	quantLayers.WithLabelValues("failed").Set(float64(rep.Failed))
	quantPeakTransient.Set(float64(rep.PeakTransient))
	quantDuration.Set(rep.Duration.Seconds())

	ev := log.Info()
	if rep.Quantized == 0 {
		ev = log.Warn()
	}
	ev.Str("mode", string(plan.Mode)).
		Str("engine", string(plan.Engine)).
		Int("quantized", rep.Quantized).
		Int("failed", rep.Failed).
		Int("peak_transient", rep.PeakTransient).
		Int64("bytes_before", rep.BytesBefore).
		Int64("bytes_after", rep.BytesAfter).
		Dur("dur", rep.Duration).
		Msg("quantization finished")
	return rep
}
