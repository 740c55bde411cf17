// Package shutdown coordinates graceful shutdown of vos-server.
//
// Components register named hooks as they start; on SIGINT, SIGTERM or
// cancellation of the run context the hooks run in reverse order under
// a shared timeout, so the HTTP server stops before the reclaimer and
// the engine closes before its store.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", store.Close)
//	err := h.Wait(ctx)
package shutdown
