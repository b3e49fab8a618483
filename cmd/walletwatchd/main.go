package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galois26/walletwatch/internal/config"
	"github.com/galois26/walletwatch/internal/connector"
	"github.com/galois26/walletwatch/internal/manager"
	"github.com/galois26/walletwatch/internal/price"
	"github.com/galois26/walletwatch/internal/status"
	"github.com/galois26/walletwatch/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yml", "Path to YAML config file")
	dbPath := flag.String("accounts-db", "", "Override the accounts database path")
	ephemeral := flag.Bool("ephemeral", false, "Keep accounts and fee cache in memory only")
	flag.Parse()

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	log.Printf("walletwatchd %s starting...", Version)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Running without a config file is fine unless one was asked for.
		if !errors.Is(err, os.ErrNotExist) || *cfgPath != "config.yml" {
			log.Fatalf("load config: %v", err)
		}
		cfg = config.Default()
	}

	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	var st store.Store
	if *ephemeral || cfg.Storage.Type == "memory" {
		st = store.NewMemory()
	} else {
		db, err := store.NewSQLite(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer db.Close()
		st = db
	}

	env := connector.Env{
		Client:     &http.Client{Timeout: cfg.Poll.RequestTimeout.Std()},
		ShortDelay: cfg.Poll.ShortDelay.Std(),
		LongDelay:  cfg.Poll.LongDelay.Std(),
	}
	mgr := manager.New(st, status.LogSink{}, env)

	if cfg.Price.Enabled {
		p, err := price.NewProviderFromConfig(cfg.Price)
		if err != nil {
			log.Fatalf("price provider: %v", err)
		}
		mgr.SetPriceProvider(p, cfg.Price.Currency, cfg.Price.CacheTTL.Std())
	}

	if err := mgr.LoadAll(); err != nil {
		log.Fatalf("load accounts: %v", err)
	}
	log.Printf("loaded %d account(s)", len(mgr.Names()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		type accountView struct {
			Name    string `json:"name"`
			Kind    string `json:"kind"`
			Balance string `json:"balance,omitempty"`
			Error   bool   `json:"error"`
		}
		var out []accountView
		for _, name := range mgr.Names() {
			c, ok := mgr.Get(name)
			if !ok {
				continue
			}
			v := accountView{Name: name, Kind: string(c.Kind()), Error: c.HasError()}
			if b, known := c.Balance(); known {
				v.Balance = b.String()
			}
			out = append(out, v)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}
	go func() {
		log.Printf("serving /metrics on %s", cfg.Server.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")
	mgr.DisconnectAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
