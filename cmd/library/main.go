package main

import (
	stdLog "log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/silent-library/library/app"
	"github.com/Astemirdum/silent-library/library/config"
)

// @title Silent Library API
// @version 1.0
// @description Catalog, borrowings, reviews and accounts of a small library.
// @BasePath /api/v1
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLog.Fatal("load envs from .env ", zap.Error(err))
	}
	var opts []config.Option
	if os.Getenv("LOG_LEVEL") == "" {
		opts = append(opts, config.WithLogLevel(zapcore.DebugLevel))
	}
	cfg := config.NewConfig(append(opts, config.WithWriteTimeout(time.Minute))...)

	app.Run(cfg)
}
