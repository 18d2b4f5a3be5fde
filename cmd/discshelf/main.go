package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/discshelf/internal/buildinfo"
	"github.com/dmitrijs2005/discshelf/internal/cli"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/config"
	"github.com/dmitrijs2005/discshelf/internal/filex"
	"github.com/dmitrijs2005/discshelf/internal/local"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/syncer"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		if dbPath, err = filex.AppPath(config.DefaultDatabaseFile); err != nil {
			return err
		}
	}
	store, err := local.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("local store: %w", err)
	}
	defer store.Close()

	storedBackend, err := store.Setting(ctx, local.KeyBackend, "")
	if err != nil {
		return err
	}
	storedMode, err := store.Setting(ctx, local.KeySyncMode, "")
	if err != nil {
		return err
	}
	cfg.FillStored(storedBackend, storedMode)

	if err := cfg.Validate(); err != nil {
		if !errors.Is(err, common.ErrNotConfigured) {
			return err
		}
		logger.Warn(ctx, "sync disabled", "reason", err.Error())
		cfg.Backend = config.BackendNone
	}

	reader := bufio.NewReader(in)
	prompter := &cli.Prompter{Reader: reader, Out: out, Email: cfg.Relational.Email}
	backend, err := cli.BuildBackend(ctx, cfg, prompter, logger)
	if err != nil {
		return err
	}
	if backend.Adapter != nil {
		if err := store.SetSetting(ctx, local.KeyBackend, string(cfg.Backend)); err != nil {
			logger.Warn(ctx, "failed to remember backend", "error", err)
		}
	}

	svc := syncer.New(backend, syncer.Options{
		Local:         store,
		SkewBuffer:    cfg.SkewBuffer,
		Threshold:     cfg.FuzzyThreshold,
		SignInTimeout: cfg.SignInTimeout,
		Log:           logger,
	})
	defer func() {
		if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "close failed", "error", err)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	// Feeds need a session; live mode resumes after sign-in.
	if backend.Feed != nil {
		if err := store.SetSetting(ctx, local.KeySyncMode, string(cfg.SyncMode)); err != nil {
			logger.Warn(ctx, "failed to remember sync mode", "error", err)
		}
	}

	cli.NewApp(svc, reader, out, logger).Run(ctx)
	return nil
}
