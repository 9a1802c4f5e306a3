package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/inference"
	"github.com/woozymasta/cropmask/internal/logger"
	"github.com/woozymasta/cropmask/internal/processor"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/airbusgeo/godal"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Image          string        `short:"i" long:"image"              env:"IMAGE"           description:"Source image to run inference on"`
	Probability    string        `short:"p" long:"probability"        env:"PROBABILITY"     description:"Existing probability raster, skips inference"`
	ProbabilityOut string        `short:"P" long:"probability-output" env:"PROBABILITY_OUT" description:"Where to save the stitched probability raster"`
	Output         string        `short:"o" long:"output"             env:"OUTPUT"          description:"Output GeoJSON" required:"true"`
	InferenceURL   string        `long:"inference-url"                env:"INFERENCE_URL"   description:"Segmentation service endpoint"`
	InferenceToken string        `long:"inference-token"              env:"INFERENCE_TOKEN" description:"Bearer token for the segmentation service"`
	Timeout        time.Duration `long:"timeout"                      env:"INFERENCE_TIMEOUT" description:"Per request timeout" default:"30s"`
	Patch          int           `long:"patch"                        env:"PATCH"           description:"Patch size in pixels" default:"64"`
	Stride         int           `long:"stride"                       env:"STRIDE"          description:"Window stride in pixels" default:"35"`
	Band           int           `short:"b" long:"band"               env:"BAND"            description:"Probability band (1-based)" default:"1"`
	Threshold      float64       `short:"t" long:"threshold"          env:"THRESHOLD"       description:"Probability a pixel must exceed" default:"0.9995"`
	Connectivity   int           `long:"connectivity"                 env:"CONNECTIVITY"    description:"Pixel connectivity" default:"4"`
	MinPixels      int           `long:"min-pixels"                   env:"MIN_PIXELS"      description:"Drop regions with fewer pixels" default:"1"`
	Indent         bool          `long:"indent"                       description:"Pretty-print the GeoJSON"`
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
	godal.RegisterAll()

	if (opts.Image == "") == (opts.Probability == "") {
		log.Fatal().Msg("Exactly one of --image or --probability is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := processor.VectorizeJob{
		Probability: opts.Probability,
		Output:      opts.Output,
		Band:        opts.Band,
		Threshold:   opts.Threshold,
		Options: processor.VectorizeOptions{
			Connectivity: opts.Connectivity,
			MinPixels:    opts.MinPixels,
		},
		Write: geo.WriteOptions{Indent: opts.Indent},
	}

	var (
		sum processor.VectorizeSummary
		err error
	)
	if opts.Probability != "" {
		sum, err = processor.ProcessVectorize(job)
	} else {
		var grid *raster.Grid
		grid, err = segment(ctx, opts)
		if err == nil {
			job.Probability = opts.Image
			sum, err = processor.ProcessVectorizeGrid(grid, job)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Segmentation failed")
	}

	log.Info().Str("status", sum.Status.String()).Msg("Segmentation finished")
}

func segment(ctx context.Context, opts Options) (*raster.Grid, error) {
	if opts.InferenceURL == "" {
		log.Fatal().Msg("--inference-url is required with --image")
	}

	client := inference.NewClient(opts.InferenceURL, opts.InferenceToken, opts.Timeout)
	if err := client.CheckHealth(ctx); err != nil {
		log.Warn().Err(err).Str("url", opts.InferenceURL).Msg("Inference health check failed, trying anyway")
	}

	grid, _, err := processor.ProcessSegment(ctx, processor.SegmentJob{
		Image:  opts.Image,
		Output: opts.ProbabilityOut,
		Options: processor.SegmentOptions{
			Patch:  opts.Patch,
			Stride: opts.Stride,
		},
	}, client)

	return grid, err
}
