// Command mailconsole serves the internal mail console API: manual
// sends, the scheduled auto-reply, and hosted image management.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ezhang/mail-console/internal/autoreply"
	"github.com/ezhang/mail-console/internal/blob"
	"github.com/ezhang/mail-console/internal/mailbox"
	"github.com/ezhang/mail-console/internal/mailer"
	"github.com/ezhang/mail-console/internal/model"
	"github.com/ezhang/mail-console/internal/server"
	"github.com/ezhang/mail-console/internal/store"
	"github.com/ezhang/mail-console/internal/trigger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mailconsole: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Mail.Address == "" {
		return fmt.Errorf("config %s: mail.address is required", *configPath)
	}
	if cfg.Server.AdminToken == "" {
		return fmt.Errorf("config %s: server.admin_token is required", *configPath)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blob.NewS3Store(context.Background(), cfg.Blob)
	if err != nil {
		return err
	}

	reader := mailbox.NewIMAPReader(cfg.Mail)
	sender := mailer.NewSMTPSender(cfg.Mail)
	resolver := autoreply.NewPendingResolver(reader, cfg.Mail)
	scheduler := autoreply.NewScheduler(st, resolver, sender, blobs, cfg.Mail, log)

	poller := trigger.New(scheduler,
		time.Duration(cfg.AutoReply.CheckIntervalSec)*time.Second, log)
	poller.Start()
	defer poller.Stop()

	srv := server.New(server.Deps{
		Store:      st,
		Checker:    scheduler,
		Resolver:   resolver,
		Sender:     sender,
		Blobs:      blobs,
		Reader:     reader,
		Mail:       cfg.Mail,
		AdminToken: cfg.Server.AdminToken,
		Log:        log,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
