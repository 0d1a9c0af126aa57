// Package source loads rule definitions into the engine. FileSource reads
// YAML rule documents from a file or directory and can watch them with
// fsnotify for hot reload; MemorySource serves a fixed set for tests and
// embedded use.
package source
