// Package widgets holds the consumers of the realtime connection: the
// analytics dashboard, the worker monitor and the live generation preview.
// Each widget subscribes to one topic, keeps the latest state it received
// and mirrors the connection state as an Indicator.
package widgets
