// Command simcashcli runs a single SimCash scenario to completion and
// prints a summary of the run. It is the short-lived counterpart to
// simcashd: no Kafka, no WebSocket dashboard, just load a scenario
// document, tick until done, and report.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paynet/simcash/configio"
	"github.com/paynet/simcash/engine"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario document (YAML or JSON)")
	jsonIn := flag.Bool("json", false, "parse -scenario as JSON instead of YAML")
	dumpJSON := flag.String("dump-json", "", "if set, write the loaded scenario back out as JSON to this path and exit")
	logLevel := flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *scenarioPath == "" {
		svcCfg := configio.Load()
		*scenarioPath = svcCfg.ScenarioPath
	}

	var cfg engine.Config
	if *jsonIn {
		cfg, err = configio.LoadScenarioJSON(*scenarioPath)
	} else {
		cfg, err = configio.LoadScenarioYAML(*scenarioPath)
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", *scenarioPath).Msg("failed to load scenario")
	}

	if *dumpJSON != "" {
		if err := configio.DumpScenarioJSON(cfg, *dumpJSON); err != nil {
			log.Fatal().Err(err).Msg("failed to dump scenario as JSON")
		}
		log.Info().Str("path", *dumpJSON).Msg("scenario dumped")
		return
	}

	o, err := engine.New(cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct orchestrator")
	}

	startTotal := o.TotalSystemMoney()
	log.Info().Int64("ticks_per_day", cfg.TicksPerDay).Int64("num_days", cfg.NumDays).
		Int("agents", len(cfg.Agents)).Msg("starting simulation")

	for !o.Done() {
		summary, err := o.Tick()
		if err != nil {
			log.Fatal().Err(err).Int64("tick", int64(summary.Tick)).Msg("tick failed")
		}
		log.Debug().Int64("tick", int64(summary.Tick)).
			Int("arrivals", summary.NumArrivals).
			Int("settlements", summary.NumSettlements).
			Int("lsm_releases", summary.NumLSMReleases).
			Int64("cost", summary.TotalCostThisTick).
			Msg("tick complete")
	}

	if err := o.CheckConservation(startTotal); err != nil {
		log.Error().Err(err).Msg("conservation check failed at end of run")
	}

	metrics := o.GetSystemMetrics()
	fmt.Printf("arrivals=%d settlements=%d settlement_rate=%.4f total_cost=%d\n",
		metrics.TotalArrivals, metrics.TotalSettlements, metrics.SettlementRate, metrics.TotalCostAccrued)
	for _, id := range o.GetAgentIDs() {
		bal, _ := o.GetAgentBalance(id)
		collateral, _ := o.GetAgentCollateralPosted(id)
		fmt.Printf("agent=%s balance=%d collateral=%d\n", id, bal, collateral)
	}
}
