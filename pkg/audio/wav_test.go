package audio_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
)

func writeTempWAV(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp wav: %v", err)
	}
	return path
}

func TestEncodeWAV_HeaderFields(t *testing.T) {
	samples := []int16{1, -1, 0, 100}
	wavData := audio.EncodeWAV(samples, 16000)

	if len(wavData) != 44+len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", 44+len(samples)*2, len(wavData))
	}
	if string(wavData[0:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wavData[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if bits := binary.LittleEndian.Uint16(wavData[34:36]); bits != 16 {
		t.Errorf("expected 16 bits per sample, got %d", bits)
	}
	if size := binary.LittleEndian.Uint32(wavData[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("expected data size %d, got %d", len(samples)*2, size)
	}
}

func TestReadWAVFile_RoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	path := writeTempWAV(t, audio.EncodeWAV(samples, 16000))

	got, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected rate 16000, got %d", rate)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestReadWAVFile_Garbage_ReturnsInputFormatError(t *testing.T) {
	path := writeTempWAV(t, []byte("definitely not a wav file"))
	_, _, err := audio.ReadWAVFile(path)
	if !errors.Is(err, audio.ErrInputFormat) {
		t.Fatalf("expected ErrInputFormat, got %v", err)
	}
}

func TestReadWAVFile_Missing_ReturnsError(t *testing.T) {
	_, _, err := audio.ReadWAVFile(filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, audio.ErrInputFormat) {
		t.Fatal("missing file should be an I/O error, not ErrInputFormat")
	}
}
