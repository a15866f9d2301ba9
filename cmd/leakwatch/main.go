package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leakwatch/leakwatch/internal/config"
	"github.com/leakwatch/leakwatch/internal/corpus"
	"github.com/leakwatch/leakwatch/internal/detector"
	"github.com/leakwatch/leakwatch/internal/engine"
	"github.com/leakwatch/leakwatch/internal/extract"
	"github.com/leakwatch/leakwatch/internal/generator"
	"github.com/leakwatch/leakwatch/internal/store"
)

// #region main
func main() {
	cfgPath := flag.String("config", "", "path to leakwatch.yaml (optional)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	probes := corpus.Default(cfg.Secret)
	if cfg.CorpusPath != "" {
		probes, err = corpus.LoadFile(cfg.CorpusPath)
		if err != nil {
			log.Fatalf("failed to load corpus: %v", err)
		}
	}

	gen := generator.NewClient(cfg.Generator.URL, cfg.GeneratorTimeout(), cfg.Generator.RequestsPerSecond)

	eng, err := engine.New(st, gen, probes, engine.Config{
		Secret:         cfg.Secret,
		VariationCount: cfg.Generator.Count,
		Diversity:      cfg.Generator.Diversity,
		MaxRetries:     cfg.Engine.MaxRetries,
		MaxMissLength:  cfg.Engine.MaxMissLength,
		Extract:        extractConfig(cfg),
		Detection:      detectionConfig(cfg),
	})
	if err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("serving metrics on %s/metrics", *metricsAddr)
	}

	fmt.Println("Leak detector ready.")
	fmt.Printf("  DB: %s | Generator: %s | Policy: %s\n", cfg.DBPath, cfg.Generator.URL, cfg.Detection.Policy)
	fmt.Println("Commands: <text> evaluates, 'miss <text>' reports, 'process' drains pending,")
	fmt.Println("          'metrics', 'export <path>', 'quit'")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		runCommand(eng, line)
	}
}

// #endregion main

// #region commands

func runCommand(eng *engine.Engine, line string) {
	switch {
	case strings.HasPrefix(line, "miss "):
		id, err := eng.ReportMiss(strings.TrimSpace(strings.TrimPrefix(line, "miss ")), false)
		if err != nil {
			log.Printf("report error: %v", err)
			return
		}
		fmt.Printf("miss queued: %s\n", id)

	case line == "process":
		summaries, err := eng.ProcessPending(context.Background())
		if err != nil {
			log.Printf("process error: %v", err)
		}
		for _, s := range summaries {
			fmt.Printf("[%s] version=%s variations=%d keywords=%d (table %d) detection %.2f -> %.2f\n",
				shortID(s.AttackID), shortID(s.RuleSetVersion),
				s.VariationsAdded, s.KeywordsExtracted, s.KeywordsTotal,
				s.DetectionRateBefore, s.DetectionRateAfter)
		}
		if len(summaries) == 0 {
			fmt.Println("nothing pending")
		}

	case line == "metrics":
		m, err := eng.Metrics()
		if err != nil {
			log.Printf("metrics error: %v", err)
			return
		}
		data, _ := json.MarshalIndent(m, "", "  ")
		fmt.Println(string(data))

	case strings.HasPrefix(line, "export "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "export "))
		records, err := eng.ExportLearnedPatterns()
		if err != nil {
			log.Printf("export error: %v", err)
			return
		}
		data, _ := json.MarshalIndent(records, "", "  ")
		if err := os.WriteFile(path, data, 0644); err != nil {
			log.Printf("write %s: %v", path, err)
			return
		}
		fmt.Printf("wrote %d patterns to %s\n", len(records), path)

	default:
		v := eng.Evaluate(line)
		verdict := "clean"
		if v.Leaked {
			verdict = "LEAK"
		}
		fmt.Printf("%s  confidence=%.2f method=%s", verdict, v.Confidence, v.Method)
		if len(v.MatchedTerms) > 0 {
			fmt.Printf(" terms=%s", strings.Join(v.MatchedTerms, ","))
		}
		fmt.Println()
	}
}

// #endregion commands

// #region helpers

func extractConfig(cfg config.Config) extract.Config {
	out := extract.DefaultConfig()
	if cfg.Engine.TopKeywords > 0 {
		out.TopK = cfg.Engine.TopKeywords
	}
	return out
}

func detectionConfig(cfg config.Config) detector.Config {
	return detector.Config{
		Threshold: cfg.Detection.Threshold,
		Policy:    detector.Policy(cfg.Detection.Policy),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
