package audiosource

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
)

// MicSource captures live audio from the default (or named) input device
// via malgo and slices the continuous capture stream into fixed-duration
// blocks through an intermediate ring buffer.
type MicSource struct {
	deviceName   string
	blockSeconds float64

	running atomic.Bool
}

// NewMicSource builds a MicSource emitting blocks of blockSeconds duration
// from the device named deviceName ("" selects the platform default).
func NewMicSource(deviceName string, blockSeconds float64) *MicSource {
	return &MicSource{deviceName: deviceName, blockSeconds: blockSeconds}
}

func (m *MicSource) Start(ctx context.Context) (<-chan Block, <-chan error) {
	blocks := make(chan Block, 4)
	errs := make(chan error, 1)

	if !m.running.CompareAndSwap(false, true) {
		errs <- fmt.Errorf("audiosource: mic source already running")
		close(blocks)
		return blocks, errs
	}

	go m.run(ctx, blocks, errs)
	return blocks, errs
}

func (m *MicSource) run(ctx context.Context, blocks chan<- Block, errs chan<- error) {
	defer close(blocks)
	defer m.running.Store(false)

	backend, err := backendForPlatform()
	if err != nil {
		errs <- err
		return
	}

	malCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		errs <- fmt.Errorf("audiosource: init malgo context: %w", err)
		return
	}
	defer func() { _ = malCtx.Uninit() }()

	blockBytes := BytesForDuration(m.blockSeconds)
	ring := ringbuffer.New(blockBytes * 8)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = 16000
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			_, _ = ring.Write(in)
		},
	}

	device, err := malgo.InitDevice(malCtx.Context, deviceConfig, callbacks)
	if err != nil {
		errs <- fmt.Errorf("audiosource: init capture device: %w", err)
		return
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		errs <- fmt.Errorf("audiosource: start capture device: %w", err)
		return
	}
	defer func() { _ = device.Stop() }()

	buf := make([]byte, blockBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ring.Length() < blockBytes {
			continue
		}
		n, err := ring.Read(buf)
		if err != nil || n == 0 {
			continue
		}

		block := Block{PCM: append([]byte(nil), buf[:n]...), Duration: float64(n/bytesPerSample) / 16000}
		select {
		case blocks <- block:
		case <-ctx.Done():
			return
		}
	}
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, fmt.Errorf("audiosource: unsupported platform %s", runtime.GOOS)
	}
}
