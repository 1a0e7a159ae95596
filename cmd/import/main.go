// Command import loads a student spreadsheet into a school from the
// command line, or exports the school's students as a workbook.
//
//	import import -tenant ECOLE_ID -file eleves.xlsx [-dry-run]
//	import export -tenant ECOLE_ID [-out eleves.xlsx]
//	import template [-out modele.xlsx]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/eleves/internal/config"
	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/JonMunkholm/eleves/internal/database"
	"github.com/JonMunkholm/eleves/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Overload()

	// The database is only needed once a command actually writes or reads
	// students, so it is not required here.
	cfg, err := config.LoadWithoutDatabase()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries the summary.
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	cli := &commandLine{
		stdout:    os.Stdout,
		logger:    logger,
		importCfg: cfg.Import,
		connect:   connectPostgres,
	}

	if err := cli.run(os.Args); err != nil {
		switch {
		case errors.Is(err, errHelp):
			os.Exit(2)
		case errors.Is(err, errRowsFailed):
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
			os.Exit(1)
		}
	}
}

func connectPostgres(ctx context.Context) (core.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to database", "name", database.DatabaseName(cfg.Database.URL))
	store, err := database.NewPGStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
