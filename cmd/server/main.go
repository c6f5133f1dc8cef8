package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"trustbridge/backend/internal/api"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	cfg := api.Config{
		DBPath:         filepath.Join(dataDir, "trustbridge.db"),
		HouseModelPath: filepath.Join(baseDir, "models", "house_price_model.json"),
		LoanModelPath:  filepath.Join(baseDir, "models", "loan_eligibility_model.json"),
	}

	if override := strings.TrimSpace(os.Getenv("TRUSTBRIDGE_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if path := strings.TrimSpace(os.Getenv("HOUSE_MODEL_PATH")); path != "" {
		cfg.HouseModelPath = path
	}
	if path := strings.TrimSpace(os.Getenv("LOAN_MODEL_PATH")); path != "" {
		cfg.LoanModelPath = path
	}
	if ttl := strings.TrimSpace(os.Getenv("SESSION_TTL")); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.SessionTTL = d
		}
	}
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	logrus.Infof("starting trustbridge backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
