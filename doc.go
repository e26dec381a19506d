// Package treeport converts row-oriented branch/leaf datasets into columnar
// Arrow objects.
//
// A source dataset is a set of named branches, each carrying one or more
// typed leaves. Treeport walks the branch metadata once, derives a typed
// columnar schema from it, then streams every record through per-field
// buffers into a compressed destination object. Variable-length arrays
// bounded by a count leaf become nested collections, surfaced as sequence
// and cardinality columns.
//
// # Architecture
//
// The import engine is built from three layers:
//
// 1. rowstore: the source side. Branch/leaf metadata, a reference in-memory
// reader, and a JSON dataset loader. Readers populate registered landing
// buffers one record at a time.
//
// 2. colstore: the destination side. A field model with a closed type
// registry, freezable schemas with value-capture entries, nested collections
// with projected views, and an Arrow IPC object store with optional zstd
// compression and atomic publication.
//
// 3. importer: the conversion engine. It classifies branches, plans shared
// read/write buffers, applies per-record transformations, and drives the
// single-threaded record loop with progress reporting.
//
// # Quick Start
//
// Import a JSON dataset into a directory of columnar objects:
//
//	import (
//	    "context"
//
//	    "github.com/ajitpratap0/treeport/pkg/config"
//	    "github.com/ajitpratap0/treeport/pkg/importer"
//	)
//
//	cfg := config.DefaultImportConfig()
//	im, err := importer.Open("events.json", "./objects", cfg)
//	if err != nil {
//	    return err
//	}
//	if err := im.Import(context.Background()); err != nil {
//	    return err
//	}
//
// Or use the CLI:
//
//	treeport import --source events.json --dest ./objects
//
// # Failure Model
//
// Every detected anomaly is fatal to the whole import. Objects are staged
// and published atomically on success, so a failed run never leaves a
// partial destination object behind.
package treeport
