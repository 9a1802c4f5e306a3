package main

import (
	"os"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/logger"
	"github.com/woozymasta/cropmask/internal/preview"
	"github.com/woozymasta/cropmask/internal/projection"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/airbusgeo/godal"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Image       string `short:"i" long:"image"       env:"IMAGE"       description:"Source image" required:"true"`
	Features    string `short:"f" long:"features"    env:"FEATURES"    description:"GeoJSON drawn over the image"`
	Output      string `short:"o" long:"output"      env:"OUTPUT"      description:"Output WebP" required:"true"`
	MaxSize     int    `short:"s" long:"max-size"    env:"MAX_SIZE"    description:"Longest edge of the preview, 0 keeps full size" default:"2048"`
	Quality     int    `short:"q" long:"quality"     env:"QUALITY"     description:"WebP quality" default:"85"`
	Tiles       string `short:"t" long:"tiles"       env:"TILES_DIR"   description:"Also write a z/x/y tile pyramid into this directory"`
	ZoomLimit   int    `short:"z" long:"zoom-limit"  env:"ZOOM_LIMIT"  description:"Tiles zoom limit" default:"4"`
	TileSize    int    `long:"tile-size"             env:"TILE_SIZE"   description:"Tile edge in pixels" default:"256"`
	Concurrency int    `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Concurrency" default:"8"`
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

	img, err := raster.ReadImage(opts.Image, 3)
	if err != nil {
		log.Fatal().Err(err).Str("path", opts.Image).Msg("Failed to read image")
	}

	fc := geo.NewFeatureCollection(img.CRS)
	if opts.Features != "" {
		if fc, err = geo.ReadFeatureCollection(opts.Features); err != nil {
			log.Fatal().Err(err).Str("path", opts.Features).Msg("Failed to read features")
		}
	}

	proj := projection.New()
	defer proj.Close()

	ro := preview.DefaultOptions()
	ro.MaxSize = opts.MaxSize

	// tiles are cut from the full resolution render
	if opts.Tiles != "" {
		ro.MaxSize = 0
	}

	rendered, err := preview.Render(img, fc, proj, ro)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render preview")
	}

	if opts.Tiles != "" {
		n, err := preview.WriteTiles(rendered, opts.Tiles, preview.TileOptions{
			ZoomLimit:   opts.ZoomLimit,
			TileSize:    opts.TileSize,
			Concurrency: opts.Concurrency,
			Quality:     opts.Quality,
		})
		if err != nil {
			log.Error().Err(err).Str("dir", opts.Tiles).Msg("Some tiles failed")
		}
		log.Info().Int("tiles", n).Str("dir", opts.Tiles).Msg("Tiles saved")

		rendered = preview.Fit(rendered, opts.MaxSize)
	}

	if err := preview.WriteWebP(opts.Output, rendered, opts.Quality); err != nil {
		log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to write preview")
	}

	log.Info().
		Str("path", opts.Output).
		Int("features", fc.Len()).
		Msg("Preview finished successfully")
}
