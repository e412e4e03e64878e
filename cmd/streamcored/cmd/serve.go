package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelav/streamcore/internal/bitrate"
	"github.com/kestrelav/streamcore/internal/config"
	"github.com/kestrelav/streamcore/internal/encoder"
	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observability"
	"github.com/kestrelav/streamcore/internal/orchestrator"
	"github.com/kestrelav/streamcore/internal/sessionlog"
	"github.com/kestrelav/streamcore/internal/statusapi"
	"github.com/kestrelav/streamcore/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and its status API",
	Long: `serve opens the pipeline against the configured output descriptor,
starts streaming, and serves the read-only status API until interrupted.

This command wires the reference passthrough encoders; a host application
embedding streamcore as a library supplies its own encoder.Audio/Video
implementations instead of shelling out through this command.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "status API bind host (overrides config)")
	serveCmd.Flags().Int("port", 0, "status API bind port (overrides config)")
	serveCmd.Flags().String("output", "", "output URI (overrides config)")
	serveCmd.Flags().String("container", "", "container type: TS, FLV, MP4, RTMP (overrides config)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("output.uri", serveCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("output.container_type", serveCmd.Flags().Lookup("container"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("output") {
		cfg.Output.URI, _ = flags.GetString("output")
	}
	if flags.Changed("container") {
		cfg.Output.ContainerType, _ = flags.GetString("container")
	}

	logger := observability.NewLogger(cfg.Logging)
	logger.Info("starting streamcored", slog.String("version", version.Short()))

	ledger, err := sessionlog.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening session ledger: %w", err)
	}
	defer ledger.Close()

	var advisor orchestrator.BitrateAdvisor
	if cfg.Bitrate.Enabled {
		a := bitrate.New(int64(cfg.Video.StartBitrate), cfg.Bitrate.MinBitrate, logger)
		a.HighLoadPercent = cfg.Bitrate.HighLoadPercent
		a.LowLoadPercent = cfg.Bitrate.LowLoadPercent
		advisor = a.Advise
	}

	pipeline := orchestrator.New(logger, advisor)

	if err := pipeline.SetConfig(audioConfigFrom(cfg.Audio), videoConfigFrom(cfg.Video)); err != nil {
		return fmt.Errorf("applying audio/video config: %w", err)
	}
	pipeline.SetEncoders(encoder.NewPassthroughAudio(), encoder.NewPassthroughVideo())

	descriptor := model.MediaDescriptor{
		URI:           cfg.Output.URI,
		ContainerType: model.ContainerType(cfg.Output.ContainerType),
		SinkType:      model.SinkType(cfg.Output.SinkType),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Open(ctx, descriptor); err != nil {
		return fmt.Errorf("opening pipeline: %w", err)
	}

	sessionID, err := ledger.Begin(ctx, pipeline.TraceID(), descriptor.URI, string(descriptor.ContainerType))
	if err != nil {
		logger.Warn("recording session open failed", slog.String("error", err.Error()))
	}

	if err := pipeline.StartStream(ctx); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	status := statusapi.New(cfg.Server, pipeline, logger, version.Short())

	errCh := make(chan error, 1)
	go func() { errCh <- status.ListenAndServe(ctx) }()

	<-ctx.Done()
	logger.Info("shutting down")

	_ = pipeline.StopStream()
	_ = pipeline.Close()
	_ = pipeline.Release()

	if sessionID != "" {
		_ = ledger.End(context.Background(), sessionID, pipeline.LastError().Get())
	}

	return <-errCh
}

func audioConfigFrom(c config.AudioConfig) model.AudioConfig {
	return model.AudioConfig{
		MimeType:     model.MimeAAC,
		SampleRate:   c.SampleRate,
		ChannelCount: c.ChannelCount,
		StartBitrate: c.StartBitrate,
		Profile:      model.AACProfile(c.Profile),
	}
}

func videoConfigFrom(c config.VideoConfig) model.VideoConfig {
	return model.VideoConfig{
		MimeType:     model.MimeH264,
		Width:        c.Width,
		Height:       c.Height,
		FPS:          c.FPS,
		StartBitrate: c.StartBitrate,
		Profile:      c.Profile,
		Level:        c.Level,
	}
}
