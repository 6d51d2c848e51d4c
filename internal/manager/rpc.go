package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/webidx/ftindex/pkg/grpc"
	"github.com/webidx/ftindex/pkg/proto"
)

// RegisterRPC wires m's Find and Harmonic operations onto server as the
// "Index.Find"/"Index.Harmonic" methods (§6.1): a programmatic alternative
// to the CLI console for callers that would otherwise have to shell out to
// it.
func RegisterRPC(server *grpc.Server, m *Manager) {
	server.Register("Index.Find", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.FindRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		start := time.Now()
		result, err := m.Find(ctx, req.Query, int(req.Limit))
		if err != nil {
			return nil, err
		}
		resp := &proto.FindResponse{
			Query:     result.Query,
			Results:   make([]proto.FindResult, len(result.Results)),
			LatencyMs: time.Since(start).Milliseconds(),
		}
		for i, r := range result.Results {
			resp.Results[i] = proto.FindResult{URLHash: r.Value, Score: r.Score, NumURLLinks: int32(r.NumURLLinks)}
		}
		return resp, nil
	})

	server.Register("Index.Harmonic", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.HarmonicRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		start := time.Now()
		score, err := m.Harmonic(req.URL)
		if err != nil {
			return nil, err
		}
		return &proto.HarmonicResponse{URL: req.URL, Harmonic: score, LatencyMs: time.Since(start).Milliseconds()}, nil
	})
}
