package spanfile

import (
	"encoding/binary"
	"fmt"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Sample returns a small two-service trace starting at now, shaped like
// what an instrumented web request exports. seed varies the ids so
// repeated samples form distinct traces.
//
//	http.request (150ms, demo-web-service)
//	├─ auth.check (8ms)
//	├─ db.query (90ms, demo-db)
//	│  └─ db.connect (12ms, demo-db)
//	└─ render (30ms, error)
func Sample(now time.Time, seed uint32) *tracepb.TracesData {
	s := binary.BigEndian.AppendUint32(nil, seed)
	traceID := append([]byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe, 0x01, 0x02, 0x03, 0x04}, s...)
	id := func(n byte) []byte { return append([]byte{n, n, n, n}, s...) }
	at := func(d time.Duration) uint64 { return uint64(now.Add(d).UnixNano()) }

	web := []*tracepb.Span{
		{
			TraceId:           traceID,
			SpanId:            id(0x11),
			Name:              "http.request",
			Kind:              tracepb.Span_SPAN_KIND_SERVER,
			StartTimeUnixNano: at(0),
			EndTimeUnixNano:   at(150 * time.Millisecond),
			Attributes: []*commonpb.KeyValue{
				stringKV("http.method", "GET"),
				stringKV("http.url", "/api/users"),
				intKV("http.status_code", 200),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		},
		{
			TraceId:           traceID,
			SpanId:            id(0x22),
			ParentSpanId:      id(0x11),
			Name:              "auth.check",
			Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
			StartTimeUnixNano: at(2 * time.Millisecond),
			EndTimeUnixNano:   at(10 * time.Millisecond),
		},
		{
			TraceId:           traceID,
			SpanId:            id(0x55),
			ParentSpanId:      id(0x11),
			Name:              "render",
			Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
			StartTimeUnixNano: at(110 * time.Millisecond),
			EndTimeUnixNano:   at(140 * time.Millisecond),
			Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: "template missing"},
		},
	}
	db := []*tracepb.Span{
		{
			TraceId:           traceID,
			SpanId:            id(0x33),
			ParentSpanId:      id(0x11),
			Name:              "db.query",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: at(12 * time.Millisecond),
			EndTimeUnixNano:   at(102 * time.Millisecond),
			Attributes: []*commonpb.KeyValue{
				stringKV("db.system", "postgresql"),
				stringKV("db.statement", "SELECT * FROM users WHERE id = $1"),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		},
		{
			TraceId:           traceID,
			SpanId:            id(0x44),
			ParentSpanId:      id(0x33),
			Name:              "db.connect",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: at(12 * time.Millisecond),
			EndTimeUnixNano:   at(24 * time.Millisecond),
		},
	}

	return &tracepb.TracesData{
		ResourceSpans: []*tracepb.ResourceSpans{
			resourceSpans("demo-web-service", web),
			resourceSpans("demo-db", db),
		},
	}
}

func resourceSpans(service string, spans []*tracepb.Span) *tracepb.ResourceSpans {
	return &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{
				stringKV("service.name", service),
				stringKV("deployment.environment", "development"),
			},
		},
		ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
	}
}

func stringKV(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}}
}

func intKV(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

// EncodeOTLPLine renders data as one line of OTLP JSON, the record format
// of the collector's file exporter.
func EncodeOTLPLine(data *tracepb.TracesData) ([]byte, error) {
	b, err := protojson.MarshalOptions{Multiline: false}.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode OTLP JSON: %w", err)
	}
	return append(b, '\n'), nil
}
