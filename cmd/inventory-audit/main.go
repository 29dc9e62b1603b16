// Command inventory-audit runs the ledger consistency audit once. It compares
// every item's cached counters with its live unit counts, corrects drift and
// exits 1 when anything was corrected.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rentora/rentora-backend/internal/inventory/events"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/config"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/spf13/pflag"
)

func main() {
	itemID := pflag.String("item", "", "audit a single item instead of all items")
	asJSON := pflag.Bool("json", false, "print drift reports as JSON")
	publish := pflag.Bool("publish", false, "publish inventory.ledger.drift events (needs RabbitMQ)")
	timeout := pflag.Duration("timeout", 10*time.Minute, "give up after this long")
	pflag.Parse()

	os.Exit(run(*itemID, *asJSON, *publish, *timeout))
}

func run(itemID string, asJSON, publish bool, timeout time.Duration) int {
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	log := logger.New("inventory-audit", cfg.Server.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = actor.WithActor(ctx, actor.SystemActor("inventory-audit"))

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return 2
	}
	defer db.Close()

	opts := []service.EngineOption{service.WithOptions(service.OptionsFromConfig(&cfg.Engine))}
	if publish {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to RabbitMQ")
			return 2
		}
		defer rmq.Close()
		publisher, err := events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to create event publisher")
			return 2
		}
		opts = append(opts, service.WithPublisher(publisher))
	}
	ledger := service.NewServices(service.NewEngine(db, log, opts...)).Ledger

	var drifts []service.DriftReport
	if itemID != "" {
		report, err := ledger.CheckConsistency(ctx, itemID)
		if err != nil {
			log.Error().Err(err).Str("item_id", itemID).Msg("audit failed")
			return 2
		}
		if report.Drifted {
			drifts = append(drifts, *report)
		}
	} else {
		drifts, err = ledger.AuditAll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("audit failed")
			return 2
		}
	}

	if asJSON {
		if drifts == nil {
			drifts = []service.DriftReport{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(drifts)
	} else {
		for _, d := range drifts {
			fmt.Printf("%s cached=%+v live=%+v\n", d.ItemID, d.Cached, d.Live)
		}
		fmt.Printf("%d item(s) corrected\n", len(drifts))
	}

	if len(drifts) > 0 {
		return 1
	}
	return 0
}
