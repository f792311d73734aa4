// Command graphstored runs the HTTP transport for one graph-store
// partition.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kishek/graph-store/config"
	"github.com/kishek/graph-store/graphstore"
	"github.com/kishek/graph-store/logging"
	"github.com/kishek/graph-store/transport"
)

func main() {
	log := logging.Root().With("graphstored")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := graphstore.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer store.Close()

	handler := transport.NewHandler(store)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = server.Shutdown(context.Background())
	}()

	log.WithField("addr", cfg.HTTPAddr).WithField("partition", cfg.PartitionID).Info("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server stopped")
	}
}
