package codec

import (
	"bytes"
	"compress/gzip"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
)

// Compressor is the compression strategy behind the codec. Both
// implementations emit standard gzip streams, so payloads produced by
// either backend decompress with either backend.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// klauspostCompressor uses the assembly-accelerated gzip implementation.
type klauspostCompressor struct{}

func (klauspostCompressor) Name() string { return "klauspost-gzip" }

func (klauspostCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := kgzip.NewWriterLevel(&buf, kgzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (klauspostCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := kgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// stdlibCompressor is the pure-Go fallback.
type stdlibCompressor struct{}

func (stdlibCompressor) Name() string { return "stdlib-gzip" }

func (stdlibCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (stdlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// selectCompressor probes the accelerated backend with a small
// round-trip and falls back to the stdlib one if the probe fails.
// Selection never depends on inspecting a payload.
func selectCompressor() Compressor {
	probe := []byte("compressor-probe")

	fast := klauspostCompressor{}
	compressed, err := fast.Compress(probe)
	if err == nil {
		restored, err := fast.Decompress(compressed)
		if err == nil && bytes.Equal(restored, probe) {
			return fast
		}
	}
	return stdlibCompressor{}
}
