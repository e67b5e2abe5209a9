package ai

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

const defaultSampleRate = 24000

// sampleRate reads the rate parameter of a mime type such as "audio/L16;codec=pcm;rate=24000".
func sampleRate(mimeType string) int {
	for _, part := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == "rate" {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return defaultSampleRate
}

// PCMToWAV prefixes little-endian PCM samples with a RIFF/WAVE header.
func PCMToWAV(pcm []byte, rate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16)) // PCM chunk size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM format
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
