// Package scheduler drives repeated publishes of vehicle snapshots. Each tick
// asks a Source for the next payload and hands it to a one-shot publisher, so
// every publish owns its connection for the duration of the call.
package scheduler
