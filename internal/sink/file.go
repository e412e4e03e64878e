package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2" // stdlib compress/bzip2 only reads
	"github.com/ulikunitz/xz"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observable"
)

// FileSink writes packet bytes in arrival order to a truncated file,
// optionally compressing the stream when the path's extension requests
// it (`.br`, `.xz`, `.bz2`).
type FileSink struct {
	f          *os.File
	bw         *bufio.Writer
	compressor io.WriteCloser // wraps bw when archival compression is active
	connected  *observable.Value[bool]
}

// NewFileSink returns an unopened FileSink.
func NewFileSink() *FileSink {
	return &FileSink{connected: observable.New(false)}
}

func (s *FileSink) Open(ctx context.Context, descriptor model.MediaDescriptor) error {
	f, err := os.Create(descriptor.URI)
	if err != nil {
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}
	s.f = f
	s.bw = bufio.NewWriterSize(f, 64*1024)

	switch {
	case strings.HasSuffix(descriptor.URI, ".br"):
		s.compressor = brotli.NewWriter(s.bw)
	case strings.HasSuffix(descriptor.URI, ".xz"):
		w, err := xz.NewWriter(s.bw)
		if err != nil {
			f.Close()
			return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
		}
		s.compressor = w
	case strings.HasSuffix(descriptor.URI, ".bz2"):
		w, err := bzip2.NewWriter(s.bw, nil)
		if err != nil {
			f.Close()
			return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
		}
		s.compressor = w
	}

	s.connected.Set(true)
	return nil
}

func (s *FileSink) writer() io.Writer {
	if s.compressor != nil {
		return s.compressor
	}
	return s.bw
}

func (s *FileSink) Write(ctx context.Context, pkt model.Packet) error {
	if _, err := s.writer().Write(pkt.Buffer); err != nil {
		return model.NewSinkError(model.ErrSinkWriteFailed, s.f.Name(), err)
	}
	return nil
}

func (s *FileSink) Close() error {
	var firstErr error
	if s.compressor != nil {
		if err := s.compressor.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.bw != nil {
		if err := s.bw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.connected.Set(false)
	return firstErr
}

func (s *FileSink) Connected() *observable.Value[bool] { return s.connected }
