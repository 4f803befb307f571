package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	httpapi "github.com/relaymesh/signalhub/internal/api/http"
	"github.com/relaymesh/signalhub/internal/adminapi"
	"github.com/relaymesh/signalhub/internal/config"
	"github.com/relaymesh/signalhub/internal/historyapi"
	"github.com/relaymesh/signalhub/internal/hub"
	"github.com/relaymesh/signalhub/internal/logging"
	"github.com/relaymesh/signalhub/internal/messagesapi"
	"github.com/relaymesh/signalhub/internal/registry"
	"github.com/relaymesh/signalhub/internal/store"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logging.Setup(cfg.Env, os.Stdout)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Error("failed to migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	st := store.New(db)
	reg := registry.New()
	signalingHub := hub.New(reg, st, log)

	adminAPI := adminapi.New(st, cfg.Admin.PublicKeyHex, log)
	historyAPI := historyapi.New(st)
	messagesAPI := messagesapi.New(st, signalingHub, cfg.Admin.PublicKeyHex, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Hub:         signalingHub,
		Admin:       adminapi.NewController(adminAPI),
		History:     historyapi.NewController(historyAPI),
		Messages:    messagesapi.NewController(messagesAPI),
		STUNServers: cfg.WebRTC.STUNServers,
	})

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
