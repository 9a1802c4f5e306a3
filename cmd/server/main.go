package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/woozymasta/cropmask/internal/logger"
	"github.com/woozymasta/cropmask/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Root     string `short:"r" long:"root"      env:"RESULTS_ROOT"   description:"Directory with one sub-directory per run" default:"results"`
	Addr     string `short:"a" long:"addr"      env:"LISTEN_ADDRESS" description:"Address to listen on"                     default:"0.0.0.0"`
	Port     int    `short:"p" long:"port"      env:"LISTEN_PORT"    description:"Port to listen on"                        default:"8080"`
	TileSize int    `long:"tile-size"           env:"TILE_SIZE"      description:"Edge of the transparent fallback tile"    default:"256"`
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

	srvCtx, err := server.NewServerContext(opts.Root, opts.TileSize)
	if err != nil {
		log.Fatal().Err(err).Str("root", opts.Root).Msg("Failed to open results root")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", srvCtx.HandleRuns)
	mux.HandleFunc("/runs/", srvCtx.HandleRunFile)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           server.RequestLogger(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", listenAddr).
		Str("root", opts.Root).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
