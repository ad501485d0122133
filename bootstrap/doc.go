// Package bootstrap wires the voicescribe collaborator graph from
// validated settings: logger, observability providers, store, quota
// ledger, transcription dispatcher, and media normalizer.
//
// The core owns no network surface of its own; the transport layer
// builds an App at process startup and obtains a pipeline runner per
// messenger via NewRunner.
package bootstrap
