// Package internal contains the implementation packages for casefiler.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - forms: case metadata, validation and placeholder values
//   - pathing: component sanitizer, date formats and the default folder layout
//   - templates: path template documents, builder, validator and store
//   - fileops: hash-verified copy with progress callbacks
//   - hashing: SHA-256 hashing, tiered verification and CSV output
//   - archive: ZIP creation and bucket upload
//   - reports: PDF, CSV and HTML case documents
//   - batch: job queue, recovery autosave and the sequential processor
//   - progress: WebSocket fan-out of processor events
//   - watcher: debounced filesystem events and the hot folder intake
//   - media: capture time probing from EXIF data and file names
//   - timecode: DVR filename timestamps, SMPTE timecode and clock offsets
//
// Supporting packages (config, logging, errors, fileutils, version and
// testutils) are shared by all of the above and by the cmd package.
//
// # Data Flow
//
// A job carries a form, an optional template and a set of sources. The
// batch processor resolves the destination through templates (falling back
// to pathing), copies with fileops, then writes reports and archives. Each
// step emits a batch.Event that the progress hub and the logger consume.
package internal
