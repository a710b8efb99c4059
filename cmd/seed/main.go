// Command seed loads the facility referral directory into the state table.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"antenatal-agent/internal/repository"
	"antenatal-agent/internal/seed"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	stateTable := os.Getenv("STATE_TABLE")
	if stateTable == "" {
		slog.Error("required environment variable is not set", "key", "STATE_TABLE")
		os.Exit(1)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	n, err := seed.LoadFacilities(ctx, stateClient, seed.MigoriFacilities, logger)
	if err != nil {
		slog.Error("facility seeding failed", "seeded", n, "err", err)
		os.Exit(1)
	}
	slog.Info("facility directory seeded", "count", n, "table", stateTable)
}
