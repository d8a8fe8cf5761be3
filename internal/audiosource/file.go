package audiosource

import (
	"context"
	"io"
	"os"
	"time"
)

// FileSource replays a raw 16 kHz mono PCM16 file as fixed-duration blocks,
// pacing emission to wall-clock time so it behaves like a live capture
// device for tests and local development.
type FileSource struct {
	path         string
	blockSeconds float64
	realTime     bool
}

// NewFileSource builds a FileSource that reads path and emits blocks of
// blockSeconds duration. When realTime is false, blocks are emitted as
// fast as the reader can drain them (useful for deterministic tests).
func NewFileSource(path string, blockSeconds float64, realTime bool) *FileSource {
	return &FileSource{path: path, blockSeconds: blockSeconds, realTime: realTime}
}

func (f *FileSource) Start(ctx context.Context) (<-chan Block, <-chan error) {
	blocks := make(chan Block)
	errs := make(chan error, 1)

	go func() {
		defer close(blocks)

		file, err := os.Open(f.path)
		if err != nil {
			errs <- err
			return
		}
		defer file.Close()

		blockBytes := BytesForDuration(f.blockSeconds)
		buf := make([]byte, blockBytes)
		ticker := time.NewTicker(durationToInterval(f.blockSeconds))
		defer ticker.Stop()

		for {
			n, err := io.ReadFull(file, buf)
			if n > 0 {
				block := Block{PCM: append([]byte(nil), buf[:n]...), Duration: float64(n/bytesPerSample) / 16000}
				if f.realTime {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
				select {
				case blocks <- block:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	return blocks, errs
}

func durationToInterval(seconds float64) time.Duration {
	if seconds <= 0 {
		return time.Millisecond
	}
	return time.Duration(seconds * float64(time.Second))
}
