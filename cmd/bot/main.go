package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gridbot/internal/broker"
	"gridbot/internal/broker/rest"
	"gridbot/internal/config"
	"gridbot/internal/engine"
	"gridbot/internal/feed"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/monitoring"
	"gridbot/internal/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default configs/config.yaml)")
	dryRun := flag.Bool("dry-run", false, "print the grid ladder and exit without connecting")
	cancelAll := flag.Bool("cancel-all", false, "cancel every live order from the saved state and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	if *dryRun {
		printLadder(cfg)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trade := rest.New("trade", cfg.Broker.BaseUrl, cfg.Broker.Trade.ApiKey, cfg.Broker.Trade.Secret, log)
	sessions := buildSessions(cfg, trade, log)

	store := storage.New(cfg.Grid.StateFile)

	if *cancelAll {
		eng := engine.New(cfg, sessions, trade, nil, store, log)
		n, err := eng.CancelAll(ctx)
		if err != nil {
			log.WithError(err).Fatal("cancel-all failed")
		}
		log.WithFields(logrus.Fields{"cancelled": n}).Info("cancel-all done")
		return
	}

	prices := feed.New(cfg.Broker.WSUrl, log)
	symbols := []string{cfg.Grid.Symbol}
	if cfg.Grid.Hedge && cfg.Grid.HedgeSymbol != cfg.Grid.Symbol {
		symbols = append(symbols, cfg.Grid.HedgeSymbol)
	}
	if err := prices.Connect(ctx, symbols...); err != nil {
		log.WithError(err).Fatal("price feed connect failed")
	}
	defer prices.Close()

	eng := engine.New(cfg, sessions, trade, prices, store, log)

	metricsErr := make(chan error, 1)
	if cfg.Runtime.MetricsAddr != "" {
		monitoring.Serve(cfg.Runtime.MetricsAddr, eng.StatusHandler(), metricsErr)
	}

	log.WithSymbol(cfg.Grid.Symbol).Info("bot started")

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Start(ctx)
	}()

	select {
	case <-sigCh:
		// Let the in-flight cycle finish and the final persist land before
		// the process exits.
		cancel()
		if err := <-engineDone; err != nil {
			log.WithError(err).Error("engine stopped with error")
		}
	case err := <-engineDone:
		if err != nil {
			log.WithError(err).Fatal("engine stopped with error")
		}
	case err := <-metricsErr:
		log.WithError(err).Fatal("metrics server failed")
	}

	log.Info("bot stopped")
}

// buildSessions wires the three broker sessions. The hedge sessions collapse
// to one shared client when their credentials match, which is what the
// termination rules branch on; they never alias the trade session.
func buildSessions(cfg *config.Config, trade *rest.Client, log *logger.Logger) broker.SessionSet {
	up := rest.New("upside-hedge", cfg.Broker.BaseUrl, cfg.Broker.UpsideHedge.ApiKey, cfg.Broker.UpsideHedge.Secret, log)
	var down broker.Session = up
	if cfg.Broker.DownsideHedge != cfg.Broker.UpsideHedge {
		down = rest.New("downside-hedge", cfg.Broker.BaseUrl, cfg.Broker.DownsideHedge.ApiKey, cfg.Broker.DownsideHedge.Secret, log)
	}

	return broker.SessionSet{Trade: trade, UpsideHedge: up, DownsideHedge: down}
}

func printLadder(cfg *config.Config) {
	levels := engine.BuildLevels(cfg.Grid, 0)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Group", "Side", "Price", "Qty", "Target", "Hedge side", "Hedge offset"})
	for i, lvl := range levels {
		target := lvl.Price + cfg.Grid.TargetSpread
		if lvl.Side == models.OrderSideSell {
			target = lvl.Price - cfg.Grid.TargetSpread
		}
		hedgeSide, hedgeOffset := "-", "-"
		if cfg.Grid.Hedge {
			hedgeSide = string(lvl.Side.Opposite())
			hedgeOffset = fmt.Sprintf("%.4f", cfg.Grid.HedgeSpread)
		}
		t.AppendRow(table.Row{
			i + 1,
			string(lvl.Group),
			string(lvl.Side),
			fmt.Sprintf("%.4f", lvl.Price),
			fmt.Sprintf("%.4f", lvl.QtyMain),
			fmt.Sprintf("%.4f", target),
			hedgeSide,
			hedgeOffset,
		})
	}
	t.Render()
}
