package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderLen = 44

// Config describes a PCM stream.
type Config struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultConfig is 16 kHz mono 16-bit, the format the upstream model expects.
func DefaultConfig() Config {
	return Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

func (c Config) bytesPerSample() int { return c.BitsPerSample / 8 }

// ByteRate is rate × channels × bytes per sample.
func (c Config) ByteRate() int { return c.SampleRate * c.Channels * c.bytesPerSample() }

// BlockAlign is channels × bytes per sample.
func (c Config) BlockAlign() int { return c.Channels * c.bytesPerSample() }

// EncodeWAV wraps 16-bit samples in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(samples []int16, cfg Config) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderLen+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(cfg.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(cfg.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(cfg.ByteRate()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(cfg.BlockAlign()))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(cfg.BitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderLen+i*2:], uint16(s))
	}
	return buf
}

var errNotWAV = errors.New("not a RIFF/WAVE buffer")

// DecodeWAV parses a buffer produced by EncodeWAV. Only 16-bit PCM is accepted.
func DecodeWAV(data []byte) ([]int16, Config, error) {
	if len(data) < wavHeaderLen {
		return nil, Config{}, fmt.Errorf("wav: %d bytes: %w", len(data), errNotWAV)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return nil, Config{}, errNotWAV
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, Config{}, fmt.Errorf("wav: unsupported format tag %d", format)
	}
	cfg := Config{
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}
	if cfg.BitsPerSample != 16 {
		return nil, Config{}, fmt.Errorf("wav: unsupported bit depth %d", cfg.BitsPerSample)
	}
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if wavHeaderLen+dataLen > len(data) {
		return nil, Config{}, fmt.Errorf("wav: data chunk of %d bytes exceeds buffer", dataLen)
	}
	return BytesToSamples(data[wavHeaderLen : wavHeaderLen+dataLen]), cfg, nil
}
