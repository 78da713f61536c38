package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"retailetl/internal/config"
	"retailetl/internal/metrics"
	"retailetl/internal/metrics/datadog"
	"retailetl/internal/metrics/prompush"
	"retailetl/internal/pipeline"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "retailetl/internal/storage/all"
)

// main is the entry point for the retail ETL binary. It loads the pipeline
// config, optionally initializes a metrics backend, and executes the run.
func main() {
	var (
		cfgPath           string
		startDateFlg      string
		endDateFlg        string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/online_retail.json", "pipeline config JSON path")
	flag.StringVar(&startDateFlg, "start-date", "", "load transactions from this date (YYYY-MM-DD or RFC3339); overrides the stored watermark")
	flag.StringVar(&endDateFlg, "end-date", "", "load transactions up to this date inclusive (YYYY-MM-DD or RFC3339)")
	fullRefresh := flag.Bool("full-refresh", false, "ignore the watermark and reload everything")
	dryRun := flag.Bool("dry-run", false, "run every stage except the database load")
	onlyClean := flag.Bool("only-clean", false, "stop after cleaning and the quality report")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	opts := pipeline.Options{
		FullRefresh: *fullRefresh,
		DryRun:      *dryRun,
		OnlyClean:   *onlyClean,
	}
	if startDateFlg != "" {
		ts, err := parseDateFlag(startDateFlg)
		if err != nil {
			fatalf("invalid -start-date: %v", err)
		}
		opts.StartDate = ts
	}
	if endDateFlg != "" {
		ts, err := parseDateFlag(endDateFlg)
		if err != nil {
			fatalf("invalid -end-date: %v", err)
		}
		opts.EndDate = ts
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := p.Job
		if jobName == "" {
			jobName = "retail_etl"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "datadog":
		// The Datadog backend buffers metrics, submits periodically and one
		// final time on Close(), so long runs get a real time series instead
		// of a single spike at the end.
		jobName := p.Job
		if jobName == "" {
			jobName = "retail_etl"
		}
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: job=%s storage=%s full_refresh=%v dry_run=%v only_clean=%v",
			p.Job, p.Storage.Kind, *fullRefresh, *dryRun, *onlyClean)
	}

	run := pipeline.New(p, log.Default())
	sum, err := run.Run(ctx, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if sum.Report != nil {
		log.Printf("quality: original=%d cleaned=%d rejected=%d rate=%.4f",
			sum.Report.OriginalRows, sum.Report.CleanedRows, sum.Report.RejectedRows, sum.Report.RejectionRate)
	}
	if !*dryRun && !*onlyClean {
		log.Printf("loaded: customers=%d products=%d transactions=%d",
			sum.Loaded.Customers, sum.Loaded.Products, sum.Loaded.Transactions)
	}
	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// parseDateFlag accepts plain dates and full timestamps.
func parseDateFlag(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
