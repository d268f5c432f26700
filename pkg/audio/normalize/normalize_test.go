package normalize

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/automuter/pkg/audio/wav"
	"github.com/haivivi/automuter/pkg/storage"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func encodeWAV(t *testing.T, samples []float32, rate int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := wav.Encode(&buf, samples, rate); err != nil {
		t.Fatalf("wav.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalize_WAV16k(t *testing.T) {
	in := sine(16000, 16000, 440)
	n := New()
	pcm, err := n.Normalize(context.Background(), encodeWAV(t, in, 16000), "wav")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 {
		t.Fatalf("format = %d/%d, want 16000/1", pcm.SampleRate, pcm.Channels)
	}
	if len(pcm.Samples) != len(in) {
		t.Fatalf("len = %d, want %d", len(pcm.Samples), len(in))
	}
	for i := 0; i < len(in); i += 997 {
		if math.Abs(float64(pcm.Samples[i]-in[i])) > 1e-3 {
			t.Errorf("sample %d = %v, want ~%v", i, pcm.Samples[i], in[i])
		}
	}
	if got := pcm.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
}

func TestNormalize_Resamples(t *testing.T) {
	in := sine(8000, 8000, 220)
	pcm, err := New().Normalize(context.Background(), encodeWAV(t, in, 8000), ".WAV")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if pcm.SampleRate != 16000 {
		t.Fatalf("rate = %d", pcm.SampleRate)
	}
	if n := len(pcm.Samples); n < 15990 || n > 16000 {
		t.Errorf("len = %d, want 16000", n)
	}
}

func TestNormalize_DecodeErrorAndDump(t *testing.T) {
	var (
		mu     sync.Mutex
		dumped []byte
		format string
	)
	n := New(WithDump(func(_ context.Context, data []byte, f string, cause error) {
		mu.Lock()
		defer mu.Unlock()
		dumped = data
		format = f
		if !errors.Is(cause, ErrDecode) {
			t.Errorf("cause %v is not ErrDecode", cause)
		}
	}))

	garbage := []byte("definitely not a riff file")
	_, err := n.Normalize(context.Background(), garbage, "wav")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Format != "wav" || derr.Size != len(garbage) {
		t.Fatalf("DecodeError = %+v", derr)
	}
	if !bytes.Equal(dumped, garbage) || format != "wav" {
		t.Errorf("dump = %q (%s)", dumped, format)
	}
}

func TestNormalize_Empty(t *testing.T) {
	_, err := New().Normalize(context.Background(), nil, "webm")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

type stubDecoder struct {
	raw    Raw
	err    error
	called string
}

func (s *stubDecoder) Decode(_ context.Context, _ []byte, format string) (Raw, error) {
	s.called = format
	return s.raw, s.err
}

func TestNormalize_FallbackDownmix(t *testing.T) {
	stub := &stubDecoder{raw: Raw{
		Samples:    []int16{16384, 0, 16384, 0, 16384, 0, 16384, 0},
		SampleRate: 16000,
		Channels:   2,
	}}
	pcm, err := New(WithFallback(stub)).Normalize(context.Background(), []byte{1}, "webm")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if stub.called != "webm" {
		t.Errorf("fallback called with %q", stub.called)
	}
	if len(pcm.Samples) != 4 {
		t.Fatalf("len = %d, want 4", len(pcm.Samples))
	}
	if math.Abs(float64(pcm.Samples[0])-0.25) > 1e-6 {
		t.Errorf("sample = %v, want 0.25", pcm.Samples[0])
	}
}

func TestNormalize_RegisteredDecoder(t *testing.T) {
	wavStub := &stubDecoder{err: errors.New("boom")}
	n := New(WithDecoder("MP3", wavStub))
	_, err := n.Normalize(context.Background(), []byte{1}, "mp3")
	if !errors.Is(err, ErrDecode) || wavStub.called != "mp3" {
		t.Fatalf("err = %v, called = %q", err, wavStub.called)
	}
}

func TestNormalizeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(path, encodeWAV(t, sine(3200, 16000, 300), 16000), 0o644); err != nil {
		t.Fatal(err)
	}
	pcm, err := New().NormalizeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("NormalizeFile: %v", err)
	}
	if got := pcm.Duration(); got != 200*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
}

func TestPCMSlice(t *testing.T) {
	p := PCM{Samples: make([]float32, 16000), SampleRate: 16000, Channels: 1}
	if got := len(p.Slice(250*time.Millisecond, 750*time.Millisecond).Samples); got != 8000 {
		t.Errorf("mid slice = %d, want 8000", got)
	}
	if got := len(p.Slice(900*time.Millisecond, 5*time.Second).Samples); got != 1600 {
		t.Errorf("clamped slice = %d, want 1600", got)
	}
	if got := len(p.Slice(2*time.Second, time.Second).Samples); got != 0 {
		t.Errorf("inverted slice = %d, want 0", got)
	}
}

func TestIsAudioFile(t *testing.T) {
	for path, want := range map[string]bool{
		"a/b/clip.WAV": true,
		"x.m4a":        true,
		"x.webm":       true,
		"notes.txt":    false,
		"noext":        false,
	} {
		if got := IsAudioFile(path); got != want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestStoreDump(t *testing.T) {
	fs, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dump := StoreDump(fs, nil)
	dump(context.Background(), []byte("bad"), "webm", errors.New("x"))

	files, err := fs.List(context.Background(), "decode-errors")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || FormatOf(files[0]) != "webm" {
		t.Fatalf("files = %v", files)
	}
	data, err := storage.ReadFile(context.Background(), fs, files[0])
	if err != nil || string(data) != "bad" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
}

func TestFFmpegDecoder(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	in := sine(44100, 44100, 440)
	raw, err := (&FFmpegDecoder{}).Decode(context.Background(), encodeWAV(t, in, 44100), "wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raw.SampleRate != 16000 || raw.Channels != 1 {
		t.Fatalf("format = %d/%d", raw.SampleRate, raw.Channels)
	}
	if len(raw.Samples) < 15500 || len(raw.Samples) > 16500 {
		t.Errorf("len = %d, want ~16000", len(raw.Samples))
	}
}
