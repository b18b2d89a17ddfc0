package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"qrm-ticketing/internal/batch"
	"qrm-ticketing/internal/blob"
	"qrm-ticketing/internal/config"
	"qrm-ticketing/internal/control"
	"qrm-ticketing/internal/kafka"
	"qrm-ticketing/internal/logger"
	"qrm-ticketing/internal/pdfsheet"
	"qrm-ticketing/internal/render"
	"qrm-ticketing/internal/scanlock"
	"qrm-ticketing/internal/sse"
	ticketdb "qrm-ticketing/internal/tickets/db"
	tickets "qrm-ticketing/internal/tickets/service"
	"qrm-ticketing/internal/tickets/ticket_api"
	"qrm-ticketing/internal/token"
)

func openDatabase(cfg *config.Config, log *logger.Logger) *ticketdb.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.Path)
	if err != nil {
		log.Fatal("STORE", "Failed to open sqlite: "+err.Error())
	}
	// sqlite allows one writer at a time. A single pooled connection queues
	// concurrent door scans on the pool instead of surfacing
	// "database is locked" to the validation path.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Warn("STORE", "WAL unavailable: "+err.Error())
	}
	if _, err := sqldb.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Warn("STORE", "busy_timeout not set: "+err.Error())
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	store := &ticketdb.DB{Bun: bunDB}
	if err := store.CreateTables(context.Background()); err != nil {
		log.Fatal("STORE", "Failed to create tables: "+err.Error())
	}
	log.LogStore("OPEN", "tickets", "sqlite ready at "+cfg.Database.Path)
	return store
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	store := openDatabase(cfg, log)
	defer store.Bun.Close()

	var lock tickets.ScanLock
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("LOCK", "Redis unreachable, scan locks disabled: "+err.Error())
		} else {
			lock = scanlock.NewLock(rdb, log, cfg.Scan.LockTTL)
			log.Info("LOCK", "Scan locks enabled via "+cfg.Redis.Addr)
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.TicketValidated, cfg.Kafka.Topics.BatchCompleted)
		defer producer.Close()
		log.LogKafka("INIT", cfg.Kafka.Topics.TicketValidated, "producer ready")
	}

	minter := token.NewMinter()
	renderer := render.NewRenderer(cfg.QR.SizePx, cfg.QR.LabelHeightPx)
	engine := tickets.NewValidationEngine(store, lock, log)
	aggregator := tickets.NewEventStatsAggregator(store)
	generator := batch.NewGenerator(store, minter, renderer, log)
	panel := control.NewPanel(aggregator, log)
	progress := sse.NewProgressEmitter()
	sheets := pdfsheet.NewEngine(cfg.Pdf.FontPath, cfg.Pdf.FontName, log)

	ctx, stopPanel := context.WithCancel(context.Background())
	go panel.Run(ctx)
	defer stopPanel()

	handler := &ticket_api.Handler{
		Validation: engine,
		Stats:      aggregator,
		Panel:      panel,
		Generator:  generator,
		Journal:    store,
		Tickets:    store,
		Blob:       blob.NewFSStore(cfg.Blob.Root),
		Gallery:    blob.NewFSStore(cfg.Gallery.Root),
		Sheets:     sheets,
		Progress:   progress,
		Producer:   producer,
		Logger:     log,
	}

	r := chi.NewRouter()
	r.Group(handler.Routes)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("API", "QRM ticketing service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API", "HTTP error: "+err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("API", "Shutdown complete")
}
