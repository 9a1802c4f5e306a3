package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/cropmask/internal/config"
	"github.com/woozymasta/cropmask/internal/inference"
	"github.com/woozymasta/cropmask/internal/logger"
	"github.com/woozymasta/cropmask/internal/processor"
	"github.com/woozymasta/cropmask/internal/projection"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile     string `short:"c" long:"config"     env:"CONFIG_FILE"     description:"Path to configuration file" default:"pipeline.yaml"`
	InferenceURL   string `long:"inference-url"        env:"INFERENCE_URL"   description:"Overrides segment.inference_url"`
	InferenceToken string `long:"inference-token"      env:"INFERENCE_TOKEN" description:"Bearer token for the segmentation service"`
	Indent         bool   `long:"indent"               description:"Pretty-print the GeoJSON outputs"`
}

func main() {
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()
	log.Logger = log.With().Str("run_id", uuid.NewString()).Logger()
	godal.RegisterAll()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.InferenceURL != "" {
		cfg.Segment.InferenceURL = opts.InferenceURL
	}
	if opts.Indent {
		cfg.Indent = true
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Str("config", opts.ConfigFile).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proj := projection.New()
	defer proj.Close()

	p := &processor.Pipeline{Config: cfg, Projector: proj}
	if cfg.Segment.Enabled() {
		client := inference.NewClient(cfg.Segment.InferenceURL, opts.InferenceToken, cfg.Segment.Timeout)
		if err := client.CheckHealth(ctx); err != nil {
			log.Warn().Err(err).Str("url", cfg.Segment.InferenceURL).Msg("Inference health check failed, trying anyway")
		}
		p.Predictor = client
	}

	log.Info().
		Str("config", opts.ConfigFile).
		Bool("segment", cfg.Segment.Enabled()).
		Msg("Starting pipeline")

	rep, err := p.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline failed")
	}

	if rep.StoppedAt != "" {
		log.Warn().Str("stage", rep.StoppedAt).Msg("Pipeline stopped early, no crop fields to report")
		return
	}

	log.Info().
		Int("fields", rep.Merge.Output).
		Float64("total_area", rep.Merge.TotalArea).
		Str("preview", rep.Preview).
		Msg("Pipeline finished successfully")
}
