package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mpsync/internal/app"
	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/db"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync"})
	_ = godotenv.Load()

	jobName := flag.String("job", "", "entry point: update_products|update_stocks|update_analytics|update_transactions|update_orders|update_campaigns|update_campaign_statistics|create_campaign_report|check_campaign_report|update_all")
	credentialID := flag.Int64("credential", 0, "api credential id")
	shopID := flag.Int64("shop", 0, "expected shop id (optional)")
	days := flag.Int("days", 0, "days to look back; 0 uses the configured default")
	step := flag.Int("step", 0, "analytics window size in days; 0 uses the api limit")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	flag.Parse()

	job, err := enums.ParseJobName(*jobName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer redisClient.Close()

	runner, err := app.NewRunner(app.RunnerParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient.DB(),
		Locks:  redisClient,
	})
	requireResource(logg, "job runner", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := runner.Run(ctx, job, jobs.Params{
		CredentialID: *credentialID,
		ShopID:       *shopID,
		Days:         *days,
		DaysStep:     *step,
	})

	if *asJSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(result.String())
	}
	if !result.OK() {
		os.Exit(1)
	}
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
