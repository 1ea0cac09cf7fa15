package main

import (
	"os"

	"github.com/mcdev12/dailies/go/internal/config"
	"github.com/mcdev12/dailies/go/internal/race/gateway"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func relayConfig(cfg *config.Config) outbox.RelayConfig {
	return outbox.RelayConfig{
		MaxRetries: cfg.Outbox.MaxRetries,
		RetryDelay: cfg.Outbox.RetryDelay,
		BatchSize:  cfg.Outbox.BatchSize,
	}
}

func listenerConfig(cfg *config.Config, dsn string) outbox.ListenerConfig {
	lc := outbox.DefaultListenerConfig()
	lc.DatabaseURL = dsn
	lc.NotifyChannel = cfg.Outbox.NotifyChannel
	lc.FallbackInterval = cfg.Outbox.FallbackInterval
	return lc
}

func connectionConfig(cfg *config.Config) gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	if cfg.Gateway.PingInterval > 0 {
		cc.PingInterval = cfg.Gateway.PingInterval
		cc.ReadTimeout = 2 * cfg.Gateway.PingInterval
	}
	return cc
}

func jetStreamConsumerConfig(cfg *config.Config) gateway.JetStreamConsumerConfig {
	jc := gateway.DefaultJetStreamConsumerConfig()
	jc.URL = cfg.NATS.URL
	jc.StreamName = cfg.NATS.StreamName
	jc.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"
	return jc
}
