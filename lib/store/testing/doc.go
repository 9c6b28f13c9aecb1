// Package testing provides a reusable conformance suite for store.IStore
// implementations. Call RunStoreTests from a _test.go file of the
// implementation with a factory returning a fresh, empty store.
package testing
