package main

import (
	"io"
	"log"

	"google.golang.org/grpc/grpclog"

	"github.com/sentiric/sentiric-missed-call-service/internal/app"
	"github.com/sentiric/sentiric-missed-call-service/internal/config"
	"github.com/sentiric/sentiric-missed-call-service/internal/logger"
)

var (
	ServiceVersion string
	GitCommit      string
	BuildDate      string
)

const serviceName = "missed-call-service"

// initGrpcLogger silences gRPC's internal logging unless we are debugging.
func initGrpcLogger(logLevel string) {
	if logLevel != "debug" {
		grpclog.SetLoggerV2(grpclog.NewLoggerV2(io.Discard, io.Discard, io.Discard))
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration could not be loaded: %v", err)
	}

	appLog := logger.New(serviceName, cfg.Env, cfg.LogLevel)
	initGrpcLogger(cfg.LogLevel)

	appLog.Info().
		Str("version", ServiceVersion).
		Str("commit", GitCommit).
		Str("build_date", BuildDate).
		Str("profile", cfg.Env).
		Msg("🚀 missed-call-service starting...")

	application := app.NewApp(cfg, appLog)
	application.Run()
}
