// Command simcashd runs a SimCash scenario as a long-lived service: it
// ticks the Orchestrator on an interval, publishes its event stream to
// Kafka, broadcasts tick summaries to connected dashboard clients, and
// serves health/readiness and read-only query endpoints over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paynet/simcash/configio"
	"github.com/paynet/simcash/dashboard"
	"github.com/paynet/simcash/engine"
	"github.com/paynet/simcash/eventsink"
	"github.com/paynet/simcash/ids"
)

var (
	kafkaReady   int32
	engineReady  int32
	startedAt    = time.Now()
)

func waitForKafka(brokerAddr string, maxAttempts int) error {
	log.Info().Str("broker", brokerAddr).Msg("waiting for kafka")
	sink, err := eventsink.NewKafkaSink(brokerAddr, "simcash-events")
	for attempt := 1; attempt <= maxAttempts && err != nil; attempt++ {
		wait := time.Duration(attempt) * 2 * time.Second
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("kafka not ready")
		time.Sleep(wait)
		sink, err = eventsink.NewKafkaSink(brokerAddr, "simcash-events")
	}
	if err != nil {
		return err
	}
	atomic.StoreInt32(&kafkaReady, 1)
	return sink.Close()
}

func main() {
	tickInterval := flag.Duration("tick-interval", 100*time.Millisecond, "wall-clock delay between ticks")
	flag.Parse()

	svcCfg := configio.Load()
	level, err := zerolog.ParseLevel(svcCfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := configio.LoadScenarioYAML(svcCfg.ScenarioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", svcCfg.ScenarioPath).Msg("failed to load scenario")
	}

	var sink *eventsink.KafkaSink
	if svcCfg.KafkaEnabled {
		if err := waitForKafka(svcCfg.KafkaBrokerAddr, 15); err != nil {
			log.Fatal().Err(err).Msg("kafka never became ready")
		}
		sink, err = eventsink.NewKafkaSink(svcCfg.KafkaBrokerAddr, svcCfg.KafkaTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka sink")
		}
		defer sink.Close()
	}

	hub := dashboard.NewHub()
	go hub.Run()

	var o *engine.Orchestrator
	if sink != nil {
		resilient := eventsink.NewResilient(sink, "kafka")
		o, err = engine.New(cfg, resilient)
	} else {
		o, err = engine.New(cfg, nil)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct orchestrator")
	}
	atomic.StoreInt32(&engineReady, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/ready", handleReady)
	mux.HandleFunc("/ws", hub.ServeWS)
	registerQueryRoutes(mux, o)

	healthSrv := &http.Server{Addr: svcCfg.HealthAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", svcCfg.HealthAddr).Msg("health/query server listening")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().Int("agents", len(cfg.Agents)).Int64("ticks_per_day", cfg.TicksPerDay).
		Int64("num_days", cfg.NumDays).Msg("starting simulation")

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case <-ctx.Done():
			break runLoop
		case <-ticker.C:
			if o.Done() {
				log.Info().Msg("simulation complete")
				break runLoop
			}
			summary, err := o.Tick()
			if err != nil {
				log.Error().Err(err).Msg("tick failed, simulation halted")
				break runLoop
			}
			hub.Broadcast("tick_summary", summary)
		}
	}

	metrics := o.GetSystemMetrics()
	log.Info().Int("arrivals", metrics.TotalArrivals).Int("settlements", metrics.TotalSettlements).
		Float64("settlement_rate", metrics.SettlementRate).Msg("final metrics")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	healthSrv.Shutdown(shutdownCtx)
}

type healthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "healthy", Service: "simcashd", Uptime: time.Since(startedAt).String(), Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

type readinessStatus struct {
	Ready       bool      `json:"ready"`
	KafkaReady  bool      `json:"kafka_ready"`
	EngineReady bool      `json:"engine_ready"`
	Timestamp   time.Time `json:"timestamp"`
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	kr := atomic.LoadInt32(&kafkaReady) == 1
	er := atomic.LoadInt32(&engineReady) == 1
	status := readinessStatus{Ready: er, KafkaReady: kr, EngineReady: er, Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	if !status.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// registerQueryRoutes wires the read-only query surface as plain JSON
// endpoints, deliberately thin rather than a generated RPC client.
func registerQueryRoutes(mux *http.ServeMux, o *engine.Orchestrator) {
	mux.HandleFunc("/query/agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, o.GetAgentIDs())
	})
	mux.HandleFunc("/query/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, o.GetSystemMetrics())
	})
	mux.HandleFunc("/query/tick", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"current_tick": o.CurrentTick(), "current_day": o.CurrentDay(), "done": o.Done()})
	})
	mux.HandleFunc("/query/agent", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id query param", http.StatusBadRequest)
			return
		}
		bal, err := o.GetAgentBalance(ids.AgentID(id))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		collateral, _ := o.GetAgentCollateralPosted(ids.AgentID(id))
		costs, _ := o.GetAgentAccumulatedCosts(ids.AgentID(id))
		writeJSON(w, map[string]any{"id": id, "balance": bal, "collateral_posted": collateral, "accumulated_costs": costs})
	})
	mux.HandleFunc("/query/queue2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"size": o.GetQueue2Size(), "contents": o.GetRTGSQueueContents()})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode error: %v", err), http.StatusInternalServerError)
	}
}
