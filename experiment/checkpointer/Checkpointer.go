// Package checkpointer implements saving and restoring the state of
// long running objects such as agents.
package checkpointer

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints/saves a serializable object
type Checkpointer interface {
	Checkpoint() error
}

// file checkpoints an object to the file named by filename on each
// call to Checkpoint
type file struct {
	object   Serializable
	filename func() string
}

// NewFile returns a Checkpointer that saves object on every call to
// Checkpoint. The object is saved to the file returned by filename.
//
// If all checkpoints should be kept, use FilenameEnumerator to
// generate the naming function. Otherwise, use Fixed so that each
// checkpoint overwrites the previous one.
func NewFile(object Serializable, filename func() string) Checkpointer {
	return &file{object: object, filename: filename}
}

// Fixed returns a naming function that always returns filename
func Fixed(filename string) func() string {
	return func() string { return filename }
}

// Checkpoint implements the Checkpointer interface. The object is
// first written to a temporary file in the same directory which then
// replaces the checkpoint, so a failed write never corrupts the
// previous checkpoint.
func (f *file) Checkpoint() error {
	data, err := f.object.GobEncode()
	if err != nil {
		return errors.Wrap(err, "checkpoint: could not encode object")
	}

	filename := f.filename()
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "checkpoint: could not create directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp")
	if err != nil {
		return errors.Wrap(err, "checkpoint: could not create file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "checkpoint: could not write file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "checkpoint: could not close file")
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "checkpoint: could not replace checkpoint")
	}
	return nil
}

// Load restores object from the checkpoint saved in filename
func Load(filename string, object Serializable) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "load: could not read checkpoint")
	}
	if err := object.GobDecode(data); err != nil {
		return errors.Wrap(err, "load: could not decode checkpoint")
	}
	return nil
}

// Encode gob encodes the values in order into a single byte slice. It
// is a helper for implementing gob.GobEncoder on types with unexported
// state.
func Encode(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode decodes data produced by Encode into the pointers in ptrs, in
// the same order the values were encoded.
func Decode(data []byte, ptrs ...interface{}) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	for _, p := range ptrs {
		if err := dec.Decode(p); err != nil {
			return err
		}
	}
	return nil
}
