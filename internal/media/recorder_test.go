package media

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeSource struct {
	data string
	err  error
}

func (f *fakeSource) Open() (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.data)), nil
}

func TestRecordCapture(t *testing.T) {
	r := NewRecorder(&fakeSource{data: "audio-bytes"})

	if err := r.Start(); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	blob, err := r.Stop()
	if err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if !bytes.Equal(blob.Data, []byte("audio-bytes")) {
		t.Errorf("Expected captured data 'audio-bytes', got '%s'", blob.Data)
	}
	if !strings.HasPrefix(blob.Ref, "blob:") {
		t.Errorf("Expected local blob reference, got '%s'", blob.Ref)
	}
	if blob.Duration < 0 {
		t.Errorf("Expected non-negative duration, got %f", blob.Duration)
	}
}

func TestAccessDenied(t *testing.T) {
	denied := errors.New("permission denied")
	r := NewRecorder(&fakeSource{err: denied})

	err := r.Start()
	if err == nil {
		t.Fatal("Expected error when capture source is denied")
	}
	if !errors.Is(err, denied) {
		t.Errorf("Expected wrapped denial, got %v", err)
	}

	// Recording never started
	if _, err := r.Stop(); err == nil {
		t.Error("Stop without a running recording should fail")
	}
}

func TestDoubleStart(t *testing.T) {
	r := NewRecorder(&fakeSource{data: "x"})

	if err := r.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}

	r.Stop()
}
