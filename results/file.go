// Package results saves the outcome of controller runs as JSON lines.
package results

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path"
	"time"

	"github.com/m-lab/remycc/logging"
)

// File is the file where we save results.
type File struct {
	// Writer is the writer for results.
	Writer io.Writer

	// Name is the path of the file.
	Name string

	fp   *os.File
	gzip *gzip.Writer
	enc  *json.Encoder
}

func newFile(datadir, what, uuid string, now time.Time, compress bool) (*File, error) {
	timestamp := now.UTC()
	dir := path.Join(datadir, "remy", timestamp.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := dir + "/remy-" + what + "-" + timestamp.Format("20060102T150405.000000000Z") + "." + uuid + ".jsonl"
	if compress {
		name += ".gz"
	}
	// Names have nanosecond precision; O_EXCL reports the unlikely clash.
	fp, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	f := &File{Writer: fp, Name: name, fp: fp}
	if compress {
		f.gzip, err = gzip.NewWriterLevel(fp, gzip.BestSpeed)
		if err != nil {
			fp.Close()
			return nil, err
		}
		f.Writer = f.gzip
	}
	f.enc = json.NewEncoder(f.Writer)
	return f, nil
}

// NewFile creates a results file in datadir, under remy/YYYY/MM/DD, named
// after what (e.g. "records" or "flows") and uuid.
func NewFile(uuid, datadir, what string, compress bool) (*File, error) {
	f, err := newFile(datadir, what, uuid, time.Now(), compress)
	if err != nil {
		logging.Logger.WithError(err).Warn("newFile failed")
		return nil, err
	}
	return f, nil
}

// WriteResult serializes result as one line of JSON.
func (f *File) WriteResult(result interface{}) error {
	return f.enc.Encode(result)
}

// Close flushes and closes the file.
func (f *File) Close() error {
	if f.gzip != nil {
		if err := f.gzip.Close(); err != nil {
			f.fp.Close()
			return err
		}
	}
	return f.fp.Close()
}
