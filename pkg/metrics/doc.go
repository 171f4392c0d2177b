/*
Package metrics provides Prometheus metrics collection and exposition for
streamsched.

All metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for scraping. Counters and histograms
(ObservationsAccepted, PollsTotal, FiringsTotal, DispatchDuration, ...) are
updated inline by pkg/scheduler as schedules fire and subscribers poll;
gauges that reflect aggregate registry state (SubscribersActive,
SchedulesTotal) are refreshed on an interval by Collector, since nothing
naturally updates them on every call.

/health and /ready are served directly off the scheduler Registry by
pkg/api, not from this package.

	timer := metrics.NewTimer()
	err := dispatcher.Run(ctx, program, args)
	timer.ObserveDuration(metrics.DispatchDuration)
*/
package metrics
