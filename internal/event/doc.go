// Package event provides a pub-sub event bus that decouples the
// orchestration loop from its observers.
//
// The loop publishes quest, step, and worker events; the run journal, the
// websocket broadcaster, and the CLI progress printer subscribe to them
// without the loop knowing about any of them.
//
// # Event Types
//
// Event types follow the pattern "category.action":
//   - quest.started, quest.finished
//   - step.dispatched, step.updated
//   - worker.settled, worker.output
//   - chat.line
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publishing goroutine and are protected against panics.
//
// # Wire Form
//
// [Encode] turns any event into an [Envelope] of type, time, and the event's
// exported fields as JSON. The journal stores envelopes and the broadcaster
// sends them.
package event
