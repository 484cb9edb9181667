package ingest

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

func StartNATS(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Sample, logger *slog.Logger) {
	current := cfg.Get().Ingest.NATS
	if !current.Enabled {
		if logger != nil {
			logger.Info("nats ingest disabled")
		}
		return
	}
	nc, err := nats.Connect(current.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		if logger != nil {
			logger.Error("nats connect error", "err", err)
		}
		return
	}
	if logger != nil {
		logger.Info("nats ingest enabled", "url", current.URL, "subject", current.Subject)
	}
	sub, err := nc.Subscribe(current.Subject, func(m *nats.Msg) {
		processLine(ctx, cfg, parser, out, logger, string(m.Data), "nats")
	})
	if err != nil {
		if logger != nil {
			logger.Error("nats subscribe error", "err", err)
		}
		nc.Close()
		return
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		nc.Close()
	}()
}
