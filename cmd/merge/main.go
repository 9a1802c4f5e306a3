package main

import (
	"os"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/logger"
	"github.com/woozymasta/cropmask/internal/processor"
	"github.com/woozymasta/cropmask/internal/projection"

	"github.com/airbusgeo/godal"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input     string  `short:"i" long:"input"     env:"INPUT"     description:"Input GeoJSON" required:"true"`
	Output    string  `short:"o" long:"output"    env:"OUTPUT"    description:"Output GeoJSON" required:"true"`
	Proximity float64 `short:"d" long:"proximity" env:"PROXIMITY" description:"Merge distance in meters" default:"15"`
	MinArea   float64 `short:"a" long:"min-area"  env:"MIN_AREA"  description:"Minimum polygon area in square meters" default:"500"`
	Simplify  float64 `short:"s" long:"simplify"  env:"SIMPLIFY"  description:"Simplification tolerance in meters, 0 disables" default:"2"`
	Indent    bool    `long:"indent" description:"Pretty-print the GeoJSON"`
}

func main() {
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

	proj := projection.New()
	defer proj.Close()

	sum, err := processor.ProcessMerge(processor.MergeJob{
		Input:  opts.Input,
		Output: opts.Output,
		Options: processor.MergeOptions{
			ProximityMeters:   opts.Proximity,
			MinAreaSqM:        opts.MinArea,
			SimplifyTolerance: opts.Simplify,
		},
		Write: geo.WriteOptions{Indent: opts.Indent},
	}, proj)
	if err != nil {
		log.Fatal().Err(err).Msg("Smart merge failed")
	}

	log.Info().Str("status", sum.Status.String()).Msg("Smart merge finished")
}
