package ctxutil

import (
	"context"
	"strings"
)

type traceKey struct{}

// TraceData ties log lines and job rows back to the HTTP request that caused
// them. Job payloads carry it as trace_id / request_id.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	if td == nil {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceKey{}).(*TraceData)
	return td
}

// LogFields returns the set ids as logger key/value pairs.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	var kv []interface{}
	if td.TraceID != "" {
		kv = append(kv, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		kv = append(kv, "request_id", td.RequestID)
	}
	return kv
}

// StampPayload copies the ids into a job payload, leaving keys the caller
// already set alone.
func (td *TraceData) StampPayload(payload map[string]any) {
	if td == nil || payload == nil {
		return
	}
	for k, v := range map[string]string{"trace_id": td.TraceID, "request_id": td.RequestID} {
		if v == "" {
			continue
		}
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
}

// TraceFromPayload is the inverse of StampPayload. Nil when neither id is
// present.
func TraceFromPayload(payload map[string]any) *TraceData {
	traceID, _ := payload["trace_id"].(string)
	reqID, _ := payload["request_id"].(string)
	td := &TraceData{TraceID: strings.TrimSpace(traceID), RequestID: strings.TrimSpace(reqID)}
	if td.TraceID == "" && td.RequestID == "" {
		return nil
	}
	return td
}
