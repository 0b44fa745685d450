package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/finsurf/finsurf/internal/agents"
	"github.com/finsurf/finsurf/internal/dashboard"
	"github.com/finsurf/finsurf/internal/pdfexport"
	"github.com/finsurf/finsurf/internal/telemetry"
)

func main() {
	var (
		addr        = flag.String("addr", ":8090", "Dashboard listen address")
		statePath   = flag.String("state", "./finsurf-state.json", "Session snapshot path (empty disables)")
		telemetryDB = flag.String("telemetry-db", "./finsurf-telemetry.db", "Token telemetry SQLite path (empty disables)")
		otlpURL     = flag.String("otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "OTLP trace endpoint (empty disables tracing)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "finsurf", strings.TrimSpace(*otlpURL))
	if err != nil {
		log.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("warning: tracing shutdown: %v", err)
		}
	}()

	var store *telemetry.Store
	if *telemetryDB != "" {
		store, err = telemetry.OpenStore(*telemetryDB)
		if err != nil {
			log.Fatalf("telemetry store: %v", err)
		}
		defer store.Close()
	}

	crew := agents.NewCrewFromEnv()
	orchestrator := agents.NewOrchestrator(crew, store)

	var exporter dashboard.ReportExporter
	browser, err := pdfexport.NewBrowser(ctx)
	if err != nil {
		log.Printf("warning: headless browser unavailable, PDF export disabled: %v", err)
	} else {
		defer browser.Close()
		exporter = pdfexport.NewExporter(browser)
	}

	sessions := dashboard.NewSessionStore()
	server := dashboard.NewServer(orchestrator, exporter, sessions, *statePath)
	if err := server.RestoreState(); err != nil {
		log.Printf("warning: could not restore sessions: %v", err)
	}

	log.Printf("finsurf dashboard listening on %s", *addr)
	srv := &http.Server{Addr: *addr, Handler: server}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
