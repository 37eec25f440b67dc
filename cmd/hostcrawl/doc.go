// Package main is the hostcrawl entrypoint.
//
// Architecture overview:
//   - Configuration: internal/config merges defaults, an optional YAML file, CRAWLER_* environment variables and
//     CLI flags through Viper, then validates the result before anything else starts. Dotenv files named by
//     --env-file (.env.local, .env) are exported first.
//   - Crawl: internal/crawler seeds a host-deduplicated frontier, paces dispatches into a bounded worker pool and
//     merges every completion under one lock until the page budget is spent, the frontier dead-ends or the process
//     is signalled. Each job carries its own timeout.
//   - Fetchers: raw (direct socket GET, default), colly, headless (chromedp), or auto, which probes raw and
//     renders app shells headlessly. All extract anchors with goquery.
//   - Output: the results file is always written; Cloud Storage, Postgres and a Pub/Sub completion notice are added
//     when configured. Interrupted crawls still write what they found.
//   - Observability: zap logs (optionally rotated into logging.file), Prometheus collectors, OpenTelemetry crawl
//     and fetch spans (tracing.exporter=log writes them to the log), and a progress hub that batches lifecycle events into a log sink, a metrics sink and, with
//     progress.redis_addr, a Redis stream. With --addr, a chi server exposes /status, /metrics and /healthz.
//
// Quick checklist:
//   - Run locally: go run ./cmd/hostcrawl crawl --seed http://example.com/ --max-pages 100 --delay 500ms
//   - Env overrides: CRAWLER_CRAWLER_SEEDS (comma separated), CRAWLER_CRAWLER_MAX_PAGES, CRAWLER_FETCHER_KIND,
//     CRAWLER_OUTPUT_GCS_BUCKET, CRAWLER_OUTPUT_POSTGRES_DSN, CRAWLER_PROGRESS_REDIS_ADDR, CRAWLER_LOGGING_LEVEL.
//   - Print results: add --table for a host/RTT table after the summary line.
package main
