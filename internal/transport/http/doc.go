// Package http serves the local status API: liveness, the connection
// snapshot, the latest state of every widget and the Prometheus metrics.
// Handlers are thin; they read from the realtime manager and the widgets
// and render JSON with go-chi/render.
package http
