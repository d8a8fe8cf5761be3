// Package consumer wires the cobra subcommand that runs the model-host
// process: loads the acoustic model, polls the rendezvous for chunks and
// control signals, and publishes transcripts back.
package consumer

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonant-Jones/WhisperBoard/internal/conf"
	internalconsumer "github.com/Resonant-Jones/WhisperBoard/internal/consumer"
	apperrors "github.com/Resonant-Jones/WhisperBoard/internal/errors"
	"github.com/Resonant-Jones/WhisperBoard/internal/inference"
	"github.com/Resonant-Jones/WhisperBoard/internal/inference/whispercpp"
	"github.com/Resonant-Jones/WhisperBoard/internal/logging"
	"github.com/Resonant-Jones/WhisperBoard/internal/metrics"
	"github.com/Resonant-Jones/WhisperBoard/internal/reaper"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/sequencer"
	"github.com/Resonant-Jones/WhisperBoard/internal/status"
)

// Command builds the "consumer" subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consumer",
		Short: "Run the model-host consumer process",
		Long:  "Load the acoustic model and process chunks published through the shared rendezvous directory.",
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
	cmd.Flags().StringVar(&settings.Model.Path, "model", settings.Model.Path, "Path to the quantized acoustic model")
	cmd.Flags().BoolVar(&settings.Model.UseGPU, "gpu", settings.Model.UseGPU, "Use GPU acceleration if available")
	cmd.Flags().IntVar(&settings.Model.Threads, "threads", settings.Model.Threads, "Inference thread count, 0 = auto")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", settings.Metrics.Enabled, "Expose Prometheus metrics")

	return viper.BindPFlags(cmd.Flags())
}

func run(settings *conf.Settings) error {
	logging.Init()
	log := logging.ForService("consumer")

	if settings.Telemetry.Enabled && settings.Telemetry.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: settings.Telemetry.SentryDSN}); err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			apperrors.SetTelemetryReporter(apperrors.NewSentryReporter(true))
		}
	}

	store, err := rendezvous.Open(settings.Rendezvous.Root)
	if err != nil {
		return fmt.Errorf("open rendezvous store: %w", err)
	}

	consumerMetrics := metrics.NewConsumer(prometheus.DefaultRegisterer)
	if settings.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(settings.Metrics.ListenAddr, mux); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	provider := whispercpp.Provider{}
	modelCtx, err := provider.Load(settings.Model.Path, settings.Model.UseGPU, settings.Model.Threads)
	if err != nil {
		return fmt.Errorf("load acoustic model: %w", err)
	}

	publisher := internalconsumer.NewRendezvousPublisher(store, log)
	settingsWatcher := internalconsumer.NewSettingsWatcher(store, settings.Producer.PollInterval, log)
	settingsWatcher.Start()
	defer settingsWatcher.Stop()

	orch := inference.New(modelCtx, publisher, settingsWatcher, log)
	orch.SetMetrics(consumerMetrics)
	orch.Warm(16000)
	defer orch.Close()

	mon := internalconsumer.New(store, nil, orch, nil, settings.Consumer.PollInterval, log)
	seq := sequencer.New(settings.Sequencer.Capacity, mon, log)
	mon.SetSequencer(seq)
	mon.SetMetrics(consumerMetrics)

	statusPub := status.New(store, orch, seq, func() bool { return true }, settings.Model.Path, settings.Consumer.StatusInterval, log)
	statusPub.Start()
	defer statusPub.Stop()
	mon.SetPinger(statusPub)

	r := reaper.New(store, reaper.Config{
		Interval:            settings.Reaper.Interval,
		StartupSweepAge:     settings.Reaper.StartupSweepAge,
		PartialMaxAge:       settings.Reaper.PartialMaxAge,
		AudioMaxAge:         settings.Reaper.AudioMaxAge,
		ArchiveMaxAge:       settings.Reaper.ArchiveMaxAge,
		DiskCriticalPercent: settings.Reaper.DiskCriticalPercent,
		LogPath:             settings.Log.Path,
	}, log)
	r.StartupSweep()
	r.Start()
	defer r.Stop()

	mon.Start()
	defer mon.Stop()

	log.Info("consumer started", "root", settings.Rendezvous.Root, "model", settings.Model.Path)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("consumer shutting down")
	return nil
}
