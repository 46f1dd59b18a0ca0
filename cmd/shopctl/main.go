package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	cartapp "github.com/storefront/client/internal/application/cart"
	"github.com/storefront/client/internal/application/session"
	"github.com/storefront/client/internal/domain/cart"
	"github.com/storefront/client/internal/infrastructure/api"
	"github.com/storefront/client/internal/infrastructure/config"
	"github.com/storefront/client/internal/infrastructure/event"
	"github.com/storefront/client/internal/infrastructure/logger"
)

const usage = `usage: shopctl <command> [args]

commands:
  otp <phone>             request a login passcode
  login <phone> <code>    complete the OTP exchange
  logout                  end the session
  cart show               print the current cart
  cart add <product-id>   add one unit
  cart rm <product-id>    remove a line
  cart qty <product-id> <n>  set a line's quantity
  cart clear              empty the cart
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	// Wire the client stack
	bus := event.NewBus(log)
	client, err := api.New(cfg, log)
	if err != nil {
		log.Fatal("failed to create api client", zap.Error(err))
	}

	store := cartapp.NewStore(bus)
	mgr := &app{}
	syncer := cartapp.NewSyncer(store, client, mgr.authenticated, cartapp.Options{
		DebounceWindow: cfg.Cart.DebounceWindow,
		SyncTimeout:    cfg.Cart.SyncTimeout,
	}, log)
	mgr.session = session.NewManager(client, client.Credentials(), syncer, bus, log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout+cfg.Cart.SyncTimeout)
	defer cancel()

	mgr.session.Restore(ctx)

	if err := mgr.run(ctx, syncer, os.Args[1:]); err != nil {
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}

	// Give fire-and-forget cart writes a moment to drain before exit.
	time.Sleep(cfg.Cart.DebounceWindow + 250*time.Millisecond)
}

// app defers the session manager reference so the syncer's authenticated
// probe can be wired before the manager exists.
type app struct {
	session *session.Manager
}

func (a *app) authenticated() bool {
	return a.session != nil && a.session.Authenticated()
}

func (a *app) run(ctx context.Context, syncer *cartapp.Syncer, args []string) error {
	switch args[0] {
	case "otp":
		if len(args) != 2 {
			return fmt.Errorf("usage: shopctl otp <phone>")
		}
		return a.session.RequestOTP(ctx, args[1])

	case "login":
		if len(args) != 3 {
			return fmt.Errorf("usage: shopctl login <phone> <code>")
		}
		return a.session.Login(ctx, args[1], args[2])

	case "logout":
		a.session.Logout(ctx)
		return nil

	case "cart":
		if len(args) < 2 {
			return fmt.Errorf("usage: shopctl cart <show|add|rm|qty|clear>")
		}
		return a.runCart(ctx, syncer, args[1:])

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) runCart(ctx context.Context, syncer *cartapp.Syncer, args []string) error {
	switch args[0] {
	case "show":
		if err := a.session.FetchCart(ctx); err != nil {
			return err
		}
		printCart(syncer.Store())
		return nil

	case "add":
		if len(args) != 2 {
			return fmt.Errorf("usage: shopctl cart add <product-id>")
		}
		syncer.Add(cart.Item{ProductID: args[1]})
		return nil

	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: shopctl cart rm <product-id>")
		}
		syncer.Remove(args[1])
		return nil

	case "qty":
		if len(args) != 3 {
			return fmt.Errorf("usage: shopctl cart qty <product-id> <n>")
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		syncer.SetQuantity(args[1], qty)
		return nil

	case "clear":
		syncer.Clear()
		return nil

	default:
		return fmt.Errorf("unknown cart command %q", args[0])
	}
}

func printCart(store *cartapp.Store) {
	items := store.Items()
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, item := range items {
		fmt.Printf("%-20s x%-3d %10s\n", item.ProductID, item.Quantity, item.LineTotal().StringFixed(2))
	}
	fmt.Printf("%d items, subtotal %s\n", items.Count(), items.Subtotal().StringFixed(2))
}
