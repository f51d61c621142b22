// Package ocr defines the abstraction layer for plugging recognition engines
// (for example, Tesseract) into the document pipeline. The interfaces are
// intentionally small and transport-agnostic so engines can be backed by
// native libraries, local binaries, or remote APIs without leaking
// provider-specific concerns into callers.
package ocr
