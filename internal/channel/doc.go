// Package channel implements named delivery channels.
//
// Each Channel owns a bounded FIFO Queue and a Provider. Channel.Run is the
// channel's single worker: it opens one provider Session, then dequeues
// messages one at a time and hands each to the retry policy until it reaches a
// terminal outcome. Per-message failures are recorded in Stats and never stop
// the worker.
//
// # Backpressure
//
// Put never blocks. A full queue returns *QueueFullError, which the HTTP layer
// maps to 503.
//
// # Lifecycle
//
// Registry starts one supervised goroutine per channel and, on Stop, cancels
// every worker and waits until each one has closed its session.
package channel
