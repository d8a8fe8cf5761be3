// Package producer wires the cobra subcommand that runs the capture-side
// reference CLI: a session driven either by microphone capture or replay
// of a PCM file, publishing chunks and control signals for a consumer
// process to pick up over the shared rendezvous directory.
package producer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonant-Jones/WhisperBoard/internal/audiosource"
	"github.com/Resonant-Jones/WhisperBoard/internal/conf"
	"github.com/Resonant-Jones/WhisperBoard/internal/logging"
	"github.com/Resonant-Jones/WhisperBoard/internal/producer"
	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/textsurface"
)

var (
	flagFile       string
	flagDevice     string
	flagBlockSecs  float64
	flagStdoutOnly bool
)

// Command builds the "producer" subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "producer",
		Short: "Run the capture-side reference producer",
		Long:  "Capture audio from a microphone or replay a PCM file, publishing chunks for a consumer process to transcribe.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Rendezvous.Root, "root", settings.Rendezvous.Root, "Shared rendezvous root directory")
	cmd.Flags().StringVar(&flagFile, "file", "", "Replay PCM16 mono 16kHz audio from this file instead of capturing live")
	cmd.Flags().StringVar(&flagDevice, "device", "", "Capture device name, empty selects the platform default")
	cmd.Flags().Float64Var(&flagBlockSecs, "block-seconds", 0.1, "Audio block duration handed to SubmitChunk")
	cmd.Flags().BoolVar(&flagStdoutOnly, "stdout", false, "Print finalized transcripts to stdout instead of logging them")

	return viper.BindPFlags(cmd.Flags())
}

func run(settings *conf.Settings) error {
	logging.Init()
	log := logging.ForService("producer")

	store, err := rendezvous.Open(settings.Rendezvous.Root)
	if err != nil {
		return fmt.Errorf("open rendezvous store: %w", err)
	}

	var surface textsurface.Surface
	if flagStdoutOnly {
		surface = textsurface.Stdout(func(s string) (int, error) { return fmt.Print(s) })
	} else {
		surface = textsurface.Logging(log)
	}

	sess := producer.New(store, surface, settings.Producer.TranscriptionTimeout, log)
	defer sess.Close()

	var source audiosource.Source
	if flagFile != "" {
		source = audiosource.NewFileSource(flagFile, flagBlockSecs, true)
	} else {
		source = audiosource.NewMicSource(flagDevice, flagBlockSecs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("producer shutting down")
		cancel()
	}()

	if _, err := sess.Begin(); err != nil {
		return fmt.Errorf("begin session: %w", err)
	}

	pollTicker := time.NewTicker(settings.Producer.PollInterval)
	defer pollTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollTicker.C:
				sess.Poll()
			}
		}
	}()

	blocks, errs := source.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			sess.Abort()
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("audio source error", "error", err)

		case block, ok := <-blocks:
			if !ok {
				if err := sess.End(); err != nil {
					log.Warn("failed to end session", "error", err)
				}
				<-ctx.Done()
				return nil
			}
			if err := sess.SubmitChunk(block.PCM, protocol.FormatPCM16, block.Duration, false); err != nil {
				log.Warn("failed to submit chunk", "error", err)
			}
		}
	}
}
