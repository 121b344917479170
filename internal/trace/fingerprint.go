package trace

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the content of a span batch. Two batches with the same
// spans in the same order have the same fingerprint, which lets callers skip
// rebuilding when a reload produced identical data.
func Fingerprint(spans []Span) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(spans)))
	d.Write(buf[:])

	for _, s := range spans {
		for _, f := range [...]string{
			s.SpanID, s.ParentSpanID, s.SpanName, s.Service, s.Timestamp,
			s.SpanKind, s.Method, s.URL, s.StatusCode,
		} {
			d.WriteString(f)
			d.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s.DurationMs))
		d.Write(buf[:])
	}
	return d.Sum64()
}
