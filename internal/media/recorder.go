package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyRecording = errors.New("recording already in progress")

// Source opens a capture stream, typically a microphone. Opening fails when
// access is denied.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Blob is a finished capture held in memory. Ref is a local object
// reference only; the data is never uploaded to durable storage.
type Blob struct {
	Ref      string
	Data     []byte
	Duration float64 // seconds
}

// Recorder captures a source into an in-memory blob
type Recorder struct {
	source Source

	mu        sync.Mutex
	stream    io.ReadCloser
	buf       bytes.Buffer
	started   time.Time
	recording bool
	done      chan struct{}
}

func NewRecorder(source Source) *Recorder {
	return &Recorder{source: source}
}

// Start opens the capture source and begins buffering. Access denial is
// logged and recording simply does not start.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	stream, err := r.source.Open()
	if err != nil {
		slog.Warn("media capture unavailable", "err", err)
		return fmt.Errorf("open capture source: %w", err)
	}

	r.stream = stream
	r.buf.Reset()
	r.started = time.Now()
	r.recording = true
	r.done = make(chan struct{})

	go func() {
		io.Copy(&r.buf, stream)
		close(r.done)
	}()

	return nil
}

// Stop closes the capture stream and returns the finished blob
func (r *Recorder) Stop() (Blob, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Blob{}, errors.New("not recording")
	}
	r.recording = false
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	stream.Close()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())

	return Blob{
		Ref:      "blob:" + uuid.NewString(),
		Data:     data,
		Duration: time.Since(r.started).Seconds(),
	}, nil
}
