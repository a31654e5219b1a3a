// Command extractd serves the document-extraction endpoint the widget
// uploads to: POST /upload with a multipart file field, returning the
// extracted text, the filename and an opaque upload id.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/askbox/askbox/pkg/config"
	"github.com/askbox/askbox/pkg/extract"
	"github.com/askbox/askbox/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	extract.NewServer(cfg.StorageDir).Routes(router)

	logger.InfoCF("extractd", "Listening", map[string]interface{}{
		"addr":    cfg.ListenAddr,
		"storage": cfg.StorageDir,
	})
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.ErrorCF("extractd", "Server stopped", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
