package manager

import (
	"time"

	"chatd/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	now := time.Now()
	resp := types.StatusResponse{
		State:            string(snap.State),
		Model:            m.cfg.ModelName,
		Path:             m.cfg.ModelPath,
		QueueLen:         len(m.queueCh),
		Inflight:         len(m.genCh),
		MaxQueueDepth:    cap(m.queueCh),
		LastError:        snap.Err,
		UptimeSeconds:    int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:   now.Unix(),
		GenerationsTotal: m.generations.Load(),
	}
	s := snap.Session
	if s == nil {
		return resp
	}
	resp.Path = s.Path
	resp.Backend = s.Backend
	resp.Device = string(s.Device)
	resp.DType = s.Model.DType().String()
	resp.Tokenizer = string(s.Tokenizer.Kind())
	resp.MaxLength = s.MaxLength
	resp.PositionLimit = s.PositionLimit
	resp.ModelBytes = s.ModelBytes
	q := s.Quant
	resp.Quantization = &types.QuantizationStatus{
		Mode:                string(q.Plan.Mode),
		Reason:              q.Plan.Reason,
		Engine:              string(q.Plan.Engine),
		EstimatedBytes:      q.Plan.EstimatedBytes,
		AvailableBytes:      q.Plan.AvailableBytes,
		MemoryKnown:         q.Plan.MemoryKnown,
		QuantizedLayers:     q.Quantized,
		FailedLayers:        q.Failed,
		PeakTransientLayers: q.PeakTransient,
		DurationMS:          q.Duration.Milliseconds(),
		BytesAfter:          q.BytesAfter,
	}
	return resp
}

// Health reports liveness plus whether the model is loaded.
func (m *Manager) Health() types.HealthResponse {
	h := types.HealthResponse{Status: "healthy", ModelLoaded: m.Ready()}
	if h.ModelLoaded {
		h.ModelName = m.cfg.ModelName
	}
	return h
}

// Models lists the served model in OpenAI format.
func (m *Manager) Models() types.ModelList {
	card := types.ModelCard{
		ID:      m.cfg.ModelName,
		Object:  types.ObjectModel,
		Created: m.startTime.Unix(),
		OwnedBy: "chatd",
		Ready:   m.Ready(),
	}
	if s := m.session.Load(); s != nil {
		card.Backend = s.Backend
		card.Created = s.LoadedAt.Unix()
	}
	return types.ModelList{Object: types.ObjectList, Data: []types.ModelCard{card}}
}
