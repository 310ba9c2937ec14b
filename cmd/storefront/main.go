package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/orders"
	"storefront/internal/session"
	"storefront/pkg/logger"
)

func main() {
	op := flag.String("op", "load", "operation: load | history | checkout")
	email := flag.String("email", "", "contact email for checkout")
	phone := flag.String("phone", "", "contact phone for checkout")
	address := flag.String("address", "", "delivery address for checkout")
	delivery := flag.Int("delivery", 0, "delivery cost for checkout")
	flag.Parse()

	cfg := config.Load()
	log := logger.New("storefront", logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})

	store := gateway.NewClient(gateway.Config{
		BaseURL: cfg.StoreURL,
		APIKey:  cfg.APIKey,
		Token:   cfg.BearerToken,
		Timeout: cfg.Timeout,
	}, log)

	sess := session.New(session.Static(cfg.UserID))
	agg := cart.New(store, sess, log)

	ctx := context.Background()

	switch *op {
	case "load":
		if err := agg.Load(ctx); err != nil {
			log.Fatal().Err(err).Msg("cart load failed")
		}
		lines := agg.Lines()
		printJSON(lines)
		fmt.Printf("total: %s\n", domain.Total(lines))

	case "history":
		history := orders.New(store, sess)
		list, err := history.List(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("order history failed")
		}
		printJSON(list)

	case "checkout":
		if err := agg.Load(ctx); err != nil {
			log.Fatal().Err(err).Msg("cart load failed")
		}
		orchestrator := checkout.New(store, agg, sess, log)
		result, err := orchestrator.PlaceOrder(ctx, checkout.PlaceOrderRequest{
			ContactEmail: *email,
			ContactPhone: *phone,
			Address:      *address,
			DeliveryCost: *delivery,
			StatusID:     "created",
		})
		if err != nil {
			log.Fatal().Err(err).Msg("checkout rejected")
		}
		if !result.Succeeded() {
			log.Fatal().Err(result.Err).Str("status", result.Status.String()).Msg("checkout failed")
		}
		if result.CartClearErr != nil {
			log.Warn().Err(result.CartClearErr).Msg("order placed, stale cart rows remain")
		}
		fmt.Printf("order placed: %s\n", result.OrderID)

	default:
		fmt.Fprintf(os.Stderr, "unknown op %q\n", *op)
		os.Exit(2)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
