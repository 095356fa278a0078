// Command tradepost runs the trade coordinator against in-memory
// inventories: a scripted two-party exchange by default, or many
// concurrent exchanges with -pairs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashgrove-games/tradepost/internal/inventory"
	"github.com/ashgrove-games/tradepost/internal/notify"
	"github.com/ashgrove-games/tradepost/internal/platform/config"
	"github.com/ashgrove-games/tradepost/internal/platform/otel"
	"github.com/ashgrove-games/tradepost/internal/platform/telemetry"
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
	"github.com/ashgrove-games/tradepost/internal/trade/registry"
)

type appConfig struct {
	RequestTimeout time.Duration `env:"TRADEPOST_REQUEST_TIMEOUT" envDefault:"30s"`
	Countdown      time.Duration `env:"TRADEPOST_COUNTDOWN" envDefault:"3s"`
}

// memoryProvider resolves participants against a fixed set of
// in-memory inventories.
type memoryProvider map[domain.ParticipantID]*inventory.Memory

func (p memoryProvider) Accessor(_ context.Context, participant domain.ParticipantID) (inventory.Accessor, error) {
	m, ok := p[participant]
	if !ok {
		return nil, inventory.ErrHandleUnavailable
	}
	return m, nil
}

// logSink prints every trade event for one participant.
type logSink struct {
	participant domain.ParticipantID
}

func (s logSink) SessionState(event notify.StateEvent) {
	log.Printf("level=info msg=\"session state\" participant=%s session_id=%s state=%s reason=%s",
		s.participant, event.SessionID, domain.StateLabel(event.State), event.Reason)
}

func (s logSink) OfferChanged(event notify.OfferEvent) {
	log.Printf("level=info msg=\"offer changed\" participant=%s session_id=%s owner=%s entries=%d",
		s.participant, event.SessionID, event.Owner, len(event.Entries))
}

func (s logSink) Status(message string) {
	log.Printf("level=info msg=\"status\" participant=%s text=%q", s.participant, message)
}

func main() {
	pairs := flag.Int("pairs", 0, "run this many concurrent trades instead of the scripted demo")
	countdown := flag.Duration("countdown", 0, "override the execution countdown")
	flag.Parse()

	var cfg appConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("tradepost: %v", err)
	}
	if *countdown > 0 {
		cfg.Countdown = *countdown
	}

	ctx := context.Background()
	shutdownTracing, err := otel.Setup(ctx, "tradepost")
	if err != nil {
		config.Exitf("tradepost: otel setup: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("level=warn msg=\"otel shutdown\" error=%q", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		config.Exitf("tradepost: metrics: %v", err)
	}

	if *pairs > 0 {
		if err := runConcurrent(ctx, cfg, metrics, *pairs); err != nil {
			config.Exitf("tradepost: %v", err)
		}
		return
	}
	if err := runDemo(ctx, cfg, metrics); err != nil {
		config.Exitf("tradepost: %v", err)
	}
}

// runDemo walks one trade through its whole lifecycle.
func runDemo(ctx context.Context, cfg appConfig, metrics *telemetry.Metrics) error {
	provider := memoryProvider{}
	reg := registry.New(
		registry.Config{RequestTimeout: cfg.RequestTimeout, Countdown: cfg.Countdown},
		provider,
		registry.WithMetrics(metrics),
	)
	defer reg.Shutdown(context.Background())

	alice := domain.ParticipantID("alice")
	bob := domain.ParticipantID("bob")
	provider[alice] = seedInventory(ctx, 16, domain.ItemEntry{ID: "ore", Quantity: 20})
	provider[bob] = seedInventory(ctx, 16, domain.ItemEntry{ID: "gem", Quantity: 3})
	reg.RegisterSink(alice, logSink{participant: alice})
	reg.RegisterSink(bob, logSink{participant: bob})

	if _, err := reg.RequestTrade(ctx, alice, bob); err != nil {
		return fmt.Errorf("request trade: %w", err)
	}
	if _, err := reg.AcceptTradeRequest(ctx, bob); err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	if err := reg.AddOfferItem(ctx, alice, domain.ItemEntry{ID: "ore", Quantity: 5}); err != nil {
		return fmt.Errorf("offer ore: %w", err)
	}
	if err := reg.AddOfferItem(ctx, bob, domain.ItemEntry{ID: "gem", Quantity: 1}); err != nil {
		return fmt.Errorf("offer gem: %w", err)
	}
	if err := reg.AcceptTrade(ctx, alice); err != nil {
		return fmt.Errorf("alice accept: %w", err)
	}
	if err := reg.AcceptTrade(ctx, bob); err != nil {
		return fmt.Errorf("bob accept: %w", err)
	}

	// The countdown timer executes the trade on its own.
	time.Sleep(cfg.Countdown + 250*time.Millisecond)

	if _, active := reg.SessionFor(alice); active {
		return fmt.Errorf("trade did not finish within the countdown window")
	}

	aliceGems := count(ctx, provider[alice], "gem")
	bobOre := count(ctx, provider[bob], "ore")
	log.Printf("level=info msg=\"demo finished\" alice_gems=%d bob_ore=%d", aliceGems, bobOre)
	return nil
}

// runConcurrent exercises the registry with many simultaneous trades.
func runConcurrent(ctx context.Context, cfg appConfig, metrics *telemetry.Metrics, pairs int) error {
	provider := memoryProvider{}
	reg := registry.New(
		registry.Config{RequestTimeout: cfg.RequestTimeout, Countdown: cfg.Countdown},
		provider,
		registry.WithMetrics(metrics),
	)
	defer reg.Shutdown(context.Background())

	for i := 0; i < pairs; i++ {
		left := domain.ParticipantID(fmt.Sprintf("left-%d", i))
		right := domain.ParticipantID(fmt.Sprintf("right-%d", i))
		provider[left] = seedInventory(ctx, 16, domain.ItemEntry{ID: "ore", Quantity: 64})
		provider[right] = seedInventory(ctx, 16, domain.ItemEntry{ID: "gem", Quantity: 64})
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pairs; i++ {
		left := domain.ParticipantID(fmt.Sprintf("left-%d", i))
		right := domain.ParticipantID(fmt.Sprintf("right-%d", i))
		g.Go(func() error {
			if _, err := reg.RequestTrade(gctx, left, right); err != nil {
				return fmt.Errorf("%s: request: %w", left, err)
			}
			if _, err := reg.AcceptTradeRequest(gctx, right); err != nil {
				return fmt.Errorf("%s: accept request: %w", right, err)
			}
			if err := reg.AddOfferItem(gctx, left, domain.ItemEntry{ID: "ore", Quantity: 8}); err != nil {
				return fmt.Errorf("%s: offer: %w", left, err)
			}
			if err := reg.AddOfferItem(gctx, right, domain.ItemEntry{ID: "gem", Quantity: 8}); err != nil {
				return fmt.Errorf("%s: offer: %w", right, err)
			}
			if err := reg.AcceptTrade(gctx, left); err != nil {
				return fmt.Errorf("%s: accept: %w", left, err)
			}
			if err := reg.AcceptTrade(gctx, right); err != nil {
				return fmt.Errorf("%s: accept: %w", right, err)
			}
			time.Sleep(cfg.Countdown)
			// The countdown timer usually wins; confirm only mops up,
			// and losing the race to the timer is fine.
			if _, active := reg.SessionFor(left); active {
				err := reg.ConfirmTrade(gctx, left)
				if err != nil && !errors.Is(err, domain.ErrWrongState) && !errors.Is(err, registry.ErrNoActiveSession) {
					return fmt.Errorf("%s: confirm: %w", left, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	exchanged := 0
	for i := 0; i < pairs; i++ {
		exchanged += count(ctx, provider[domain.ParticipantID(fmt.Sprintf("right-%d", i))], "ore")
	}
	log.Printf("level=info msg=\"concurrent trades finished\" pairs=%d ore_moved=%d elapsed=%s",
		pairs, exchanged, time.Since(start))
	return nil
}

func seedInventory(ctx context.Context, capacity int, entries ...domain.ItemEntry) *inventory.Memory {
	m := inventory.NewMemory(capacity)
	if err := m.Replace(ctx, entries); err != nil {
		config.Exitf("tradepost: seed inventory: %v", err)
	}
	return m
}

func count(ctx context.Context, m *inventory.Memory, itemID string) int {
	entries, err := m.Entries(ctx)
	if err != nil {
		return 0
	}
	total := 0
	for _, entry := range entries {
		if entry.ID == itemID {
			total += entry.Quantity
		}
	}
	return total
}
