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

	Input  string  `short:"i" long:"input"  env:"INPUT"  description:"Input GeoJSON" required:"true"`
	Raster string  `short:"r" long:"raster" env:"RASTER" description:"Source raster the features were detected on" required:"true"`
	Output string  `short:"o" long:"output" env:"OUTPUT" description:"Output GeoJSON" required:"true"`
	Margin float64 `short:"m" long:"margin" env:"MARGIN" description:"Border band width in pixels" default:"10"`
	Indent bool    `long:"indent" description:"Pretty-print the GeoJSON"`
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

	sum, err := processor.ProcessBorders(processor.BordersJob{
		Input:        opts.Input,
		Raster:       opts.Raster,
		Output:       opts.Output,
		MarginPixels: opts.Margin,
		Write:        geo.WriteOptions{Indent: opts.Indent},
	}, proj)
	if err != nil {
		log.Fatal().Err(err).Msg("Border filter failed")
	}

	log.Info().Str("status", sum.Status.String()).Msg("Border filter finished")
}
