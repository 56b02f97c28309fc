package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/transborda/cargo-booking/internal/config"
	"github.com/transborda/cargo-booking/internal/database"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
	"github.com/transborda/cargo-booking/internal/sweeper"
)

// The worker hosts the background side of the booking engine: the two
// sweepers and the reservation event consumer.  The booking operations
// themselves are invoked by the API collaborator through the service layer.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	spaces := repository.NewSpaceRepo(db)
	reservations := repository.NewReservationRepo(db)
	notifier := queue.NewPublisher(cfg.AMQPURL)

	holds := sweeper.NewHoldExpiration(db, spaces, notifier)
	deadlines := sweeper.NewPaymentDeadline(db, spaces, reservations, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		holds.Runner(cfg.HoldSweepInterval).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		deadlines.Runner(cfg.DeadlineSweepEvery).Run(ctx)
	}()

	go func() {
		if err := queue.StartReservationConsumer(cfg.AMQPURL); err != nil {
			log.Printf("reservation consumer stopped: %v", err)
		}
	}()

	log.Printf("booking worker up (env=%s)", cfg.Env)
	wg.Wait()
}
