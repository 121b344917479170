package spanfile

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// Attribute keys checked in order; the newer semantic convention comes first.
var (
	methodKeys = []string{"http.request.method", "http.method"}
	urlKeys    = []string{"url.full", "http.url", "http.target", "url.path"}
	statusKeys = []string{"http.response.status_code", "http.status_code"}
)

// FromOTLP flattens OTLP resource spans into span records. Ids are hex
// encoded, the service comes from the resource's service.name, and the
// HTTP status attribute wins over the span status when both are present.
func FromOTLP(data *tracepb.TracesData) []trace.Span {
	var out []trace.Span
	for _, rs := range data.GetResourceSpans() {
		service := stringAttr(rs.GetResource().GetAttributes(), "service.name")
		for _, ss := range rs.GetScopeSpans() {
			for _, s := range ss.GetSpans() {
				out = append(out, convertOTLPSpan(s, service))
			}
		}
	}
	return out
}

func convertOTLPSpan(s *tracepb.Span, service string) trace.Span {
	start := s.GetStartTimeUnixNano()
	end := s.GetEndTimeUnixNano()
	// Computed in signed nanoseconds so an end before start stays negative
	// and gets flagged by the builder.
	durMs := float64(int64(end)-int64(start)) / 1e6

	attrs := s.GetAttributes()
	status := firstAttr(attrs, statusKeys)
	if status == "" {
		status = statusName(s.GetStatus().GetCode())
	}

	return trace.Span{
		SpanID:       idString(s.GetSpanId()),
		ParentSpanID: idString(s.GetParentSpanId()),
		SpanName:     s.GetName(),
		Service:      service,
		Timestamp:    time.Unix(0, int64(start)).UTC().Format(time.RFC3339Nano),
		DurationMs:   durMs,
		SpanKind:     kindName(s.GetKind()),
		Method:       firstAttr(attrs, methodKeys),
		URL:          firstAttr(attrs, urlKeys),
		StatusCode:   status,
	}
}

// idString renders a span id. The collector's file exporter writes ids as
// hex text, which protojson reads as base64 and turns into 12 bytes instead
// of 8; re-encoding those bytes as base64 recovers the original text.
func idString(b []byte) string {
	if len(b) == 12 {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

func kindName(k tracepb.Span_SpanKind) string {
	if k == tracepb.Span_SPAN_KIND_UNSPECIFIED {
		return ""
	}
	return strings.TrimPrefix(k.String(), "SPAN_KIND_")
}

func statusName(code tracepb.Status_StatusCode) string {
	if code == tracepb.Status_STATUS_CODE_UNSET {
		return ""
	}
	return strings.TrimPrefix(code.String(), "STATUS_CODE_")
}

func firstAttr(attrs []*commonpb.KeyValue, keys []string) string {
	for _, k := range keys {
		if v := stringAttr(attrs, k); v != "" {
			return v
		}
	}
	return ""
}

func stringAttr(attrs []*commonpb.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.GetKey() != key {
			continue
		}
		v := kv.GetValue()
		switch v.GetValue().(type) {
		case *commonpb.AnyValue_StringValue:
			return v.GetStringValue()
		case *commonpb.AnyValue_IntValue:
			return strconv.FormatInt(v.GetIntValue(), 10)
		case *commonpb.AnyValue_DoubleValue:
			return strconv.FormatFloat(v.GetDoubleValue(), 'f', -1, 64)
		case *commonpb.AnyValue_BoolValue:
			return strconv.FormatBool(v.GetBoolValue())
		}
	}
	return ""
}
