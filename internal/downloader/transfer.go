package downloader

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "mfpget/pkg/errors"
)

// Outcome is the result of a single transfer
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// progressWriter advances the owned slot's written count as bytes flow
// through it. It is the write side of a TeeReader wrapped around the
// response body.
type progressWriter struct {
	lease *Lease
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.lease.Advance(int64(n))
	return n, nil
}

// Transfer streams body into dest while advancing the leased slot's
// progress. length must be the stream's total size as reported by the
// server; a bounded progress bar cannot be rendered without it.
//
// dest is opened for exclusive creation: an existing file is never
// overwritten and yields OutcomeSkipped. On a stream or filesystem error the
// partially written file is left on disk.
func Transfer(body io.Reader, length int64, dest string, lease *Lease) (Outcome, error) {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, apperrors.Wrap(apperrors.ErrorTypeIO, "failed to create destination file", err)
	}

	if length < 0 {
		out.Close()
		// Nothing was written; the empty placeholder must not poison the
		// skip check of a later run.
		os.Remove(dest)
		return OutcomeFailed, apperrors.Newf(apperrors.ErrorTypeLengthUnknown, "no content length reported for %s", filepath.Base(dest))
	}

	lease.Update(filepath.Base(dest), length, 0)

	_, copyErr := io.Copy(out, io.TeeReader(body, &progressWriter{lease: lease}))
	closeErr := out.Close()

	if copyErr != nil {
		return OutcomeFailed, apperrors.Wrap(apperrors.ErrorTypeIO, "transfer interrupted", copyErr)
	}
	if closeErr != nil {
		return OutcomeFailed, apperrors.Wrap(apperrors.ErrorTypeIO, "failed to close destination file", closeErr)
	}

	return OutcomeCompleted, nil
}
