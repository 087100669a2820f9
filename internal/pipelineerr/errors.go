// Package pipelineerr defines the error taxonomy the pipeline uses to
// decide propagation policy: which failures are skip-and-continue, which
// abort one output variant, and which abort the whole run.
package pipelineerr

import "fmt"

// InputDiscoveryError covers a missing/unreadable directory or a malformed
// tileset manifest encountered during discovery. Logged and skipped; never
// aborts the run.
type InputDiscoveryError struct {
	Path string
	Err  error
}

func (e InputDiscoveryError) Error() string {
	return fmt.Sprintf("input discovery: %s: %v", e.Path, e.Err)
}

func (e InputDiscoveryError) Unwrap() error { return e.Err }

// ParseError covers a malformed GLB or glTF JSON document. The offending
// file is dropped from the run.
type ParseError struct {
	Path string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// DataAccessError covers an accessor referencing out-of-bounds bytes or a
// buffer view referencing an external URI the core can't resolve. Fatal to
// the output variant currently being assembled.
type DataAccessError struct {
	ModelId   uint32
	MeshIndex int
	Err       error
}

func (e DataAccessError) Error() string {
	return fmt.Sprintf("data access on model %d mesh %d: %v", e.ModelId, e.MeshIndex, e.Err)
}

func (e DataAccessError) Unwrap() error { return e.Err }

// RemapError covers a resource the remapper could not copy. The current
// mesh is abandoned; the assembler continues with other meshes and marks
// its output as degraded.
type RemapError struct {
	ModelId    uint32
	SourceKind string
	SourceIdx  int
	Err        error
}

func (e RemapError) Error() string {
	return fmt.Sprintf("remap %s[%d] from model %d: %v", e.SourceKind, e.SourceIdx, e.ModelId, e.Err)
}

func (e RemapError) Unwrap() error { return e.Err }

// SerializationError covers a GLB writer failure. Fatal to the current
// output variant; no file is written.
type SerializationError struct {
	OutputPath string
	Err        error
}

func (e SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.OutputPath, e.Err)
}

func (e SerializationError) Unwrap() error { return e.Err }

// IOError covers a write failure. Fatal to the current output variant.
type IOError struct {
	Path string
	Err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("io %s: %v", e.Path, e.Err)
}

func (e IOError) Unwrap() error { return e.Err }
