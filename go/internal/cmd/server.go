package main

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/mcdev12/dailies/go/internal/race/racev1"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Race-Error", "Connect-Protocol-Version"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)

	handler := c.Handler(auth.Middleware(services.Verifier)(mux))

	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	racePath, raceHandler := racev1.NewRaceServiceHandler(services.Race)
	mux.Handle(racePath, raceHandler)

	services.Gateway.RegisterRoutes(mux, services.Race)
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	if services.RelayHealth != nil {
		mux.Handle("GET /health/relay", services.RelayHealth)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
