package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/voicemesh/internal/adapters/http"
	"github.com/dkeye/voicemesh/internal/adapters/hub"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the global logger early so config.Load can use it.
	logging.Init("info")

	flags := pflag.NewFlagSet("meshhub", pflag.ExitOnError)
	configPath := flags.String("config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "release", "gin mode: debug or release")
	_ = flags.Parse(os.Args[1:])

	v := config.New()
	_ = v.BindPFlag("hub.port", flags.Lookup("port"))
	_ = v.BindPFlag("hub.mode", flags.Lookup("mode"))

	cfg, err := config.Load(v, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.SetLevel(cfg.LogLevel)

	opts, err := hub.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("hub options")
	}
	h := hub.New(opts)

	r := router.SetupRouter(ctx, cfg.Hub.Mode, h)
	addr := fmt.Sprintf(":%d", cfg.Hub.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("codec", opts.Codec.Name()).Msg("mesh hub started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
