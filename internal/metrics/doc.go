// Package metrics provides build, stage, and page metrics for pagetree.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks:
//
//	g := site.NewGenerator(cfg, renderer) // NoopRecorder
//	g.WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// PrometheusRecorder registers its collectors on the given registry, and
// HTTPHandler exposes that registry for scraping (the serve command mounts it
// at /metrics).
package metrics
