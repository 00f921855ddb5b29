// Package metrics provides Prometheus instrumentation for flowcore components.
//
// A single Registry bundles the vectors for every component: resource pool
// permits, task outcomes, bounded channel depth, worker pool activity,
// pipeline item flow, broadcast hub membership and deliveries, and the
// shutdown coordinator lifecycle.
//
// Components accept a *Registry (nil disables collection) or a Config which
// resolves to one:
//
//	promReg := prometheus.NewRegistry()
//	reg := metrics.NewRegistry(promReg)
//
//	pool, _ := resourcepool.NewWithMetrics(2, "db", reg)
//	h := hub.New(hub.WithName("chat"), hub.WithMetrics(reg))
//
//	http.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
//
// Registering two registries against the same Prometheus registerer panics,
// as it does for any duplicate collector; use a fresh prometheus.Registry per
// Registry in tests.
package metrics
