// Package spanfile reads span batches from disk. It accepts a JSON array of
// span records, JSON Lines of span records, a {"spans": [...]} document, and
// OTLP JSON as written by the OpenTelemetry Collector's file exporter.
package spanfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

const (
	// OTLP lines can be large when a batch carries many attributes.
	lineBufferInitial = 1 * 1024 * 1024
	lineBufferMax     = 10 * 1024 * 1024
)

var (
	// ErrUnknownFormat is returned when the input is not JSON at all.
	ErrUnknownFormat = errors.New("unrecognised span file format")
	// ErrMalformedRecord wraps a record that could not be decoded. Other
	// records in the same input are still returned.
	ErrMalformedRecord = errors.New("malformed span record")
)

// wireSpan is a span record as it appears in JSON. status_code shows up as
// either a number or a string depending on the producer.
type wireSpan struct {
	SpanID       string          `json:"span_id"`
	ParentSpanID string          `json:"parent_span_id"`
	SpanName     string          `json:"span_name"`
	Service      string          `json:"service"`
	Timestamp    string          `json:"timestamp"`
	DurationMs   float64         `json:"duration_ms"`
	SpanKind     string          `json:"span_kind"`
	Method       string          `json:"method"`
	URL          string          `json:"url"`
	StatusCode   json.RawMessage `json:"status_code"`
}

func (w wireSpan) span() trace.Span {
	return trace.Span{
		SpanID:       w.SpanID,
		ParentSpanID: w.ParentSpanID,
		SpanName:     w.SpanName,
		Service:      w.Service,
		Timestamp:    w.Timestamp,
		DurationMs:   w.DurationMs,
		SpanKind:     w.SpanKind,
		Method:       w.Method,
		URL:          w.URL,
		StatusCode:   statusString(w.StatusCode),
	}
}

func statusString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}

// document is the object form: either a span list or OTLP resource spans.
type document struct {
	Spans         []json.RawMessage `json:"spans"`
	ResourceSpans json.RawMessage   `json:"resourceSpans"`
}

// Decode reads every span in r. Records that fail to decode are skipped and
// reported together in the returned error, which wraps ErrMalformedRecord;
// the spans that did decode are returned alongside it.
func Decode(r io.Reader) ([]trace.Span, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading spans: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) ([]trace.Span, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		return decodeRecords(records)
	case '{':
		first, rest, _ := bytes.Cut(trimmed, []byte("\n"))
		if len(bytes.TrimSpace(rest)) > 0 && json.Valid(bytes.TrimSpace(first)) {
			return decodeLines(data)
		}
		// One document spanning the whole input, possibly pretty-printed.
		if json.Valid(trimmed) {
			return decodeObject(trimmed)
		}
		return decodeLines(data)
	}
	return nil, ErrUnknownFormat
}

func decodeObject(obj []byte) ([]trace.Span, error) {
	var doc document
	if err := json.Unmarshal(obj, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	switch {
	case len(doc.ResourceSpans) > 0:
		var td tracepb.TracesData
		if err := protojson.Unmarshal(obj, &td); err != nil {
			return nil, fmt.Errorf("%w: parse OTLP JSON: %w", ErrMalformedRecord, err)
		}
		return FromOTLP(&td), nil
	case doc.Spans != nil:
		return decodeRecords(doc.Spans)
	}

	var w wireSpan
	if err := json.Unmarshal(obj, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return []trace.Span{w.span()}, nil
}

func decodeLines(data []byte) ([]trace.Span, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, min(len(data)+1, lineBufferInitial)), lineBufferMax)

	var (
		spans []trace.Span
		errs  []error
	)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		got, err := decodeObject(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n, err))
		}
		spans = append(spans, got...)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("scanning lines: %w", err))
	}
	return spans, errors.Join(errs...)
}

// decodeRecords decodes each array element on its own so one bad record
// does not cost the rest of the batch.
func decodeRecords(records []json.RawMessage) ([]trace.Span, error) {
	spans := make([]trace.Span, 0, len(records))
	var errs []error
	for i, raw := range records {
		var w wireSpan
		if err := json.Unmarshal(raw, &w); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w: %w", i+1, ErrMalformedRecord, err))
			continue
		}
		spans = append(spans, w.span())
	}
	return spans, errors.Join(errs...)
}
