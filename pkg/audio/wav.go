package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAVFile loads a RIFF/WAV file and returns its samples as mono 16-bit
// PCM together with the file's sample rate. Multi-channel files are
// down-mixed by averaging. Only 16-bit PCM files are accepted; anything else
// returns ErrInputFormat. I/O failures are returned unwrapped.
func ReadWAVFile(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %q is not a valid WAV file", ErrInputFormat, path)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%w: unsupported bit depth %d (want 16)", ErrInputFormat, dec.BitDepth)
	}

	var buf *goaudio.IntBuffer
	buf, err = dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode %q: %w", path, err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	if channels > 1 {
		samples = StereoToMono(samples, channels)
	}
	return samples, int(dec.SampleRate), nil
}

// EncodeWAV wraps mono 16-bit PCM samples in a minimal RIFF/WAV container.
// Used for shipping finalized segments to HTTP recognition backends.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const bps = 16
	const channels = 1
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bps)                // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}

	return buf
}
