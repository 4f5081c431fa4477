// Package ferrors defines the collector's error kinds (spec §7) as
// sentinel values wrapped with context via github.com/pkg/errors,
// following the teacher's fserrors convention of small classifier
// helpers instead of one generic error type.
package ferrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel kinds. Components wrap one of these with Wrap (or return it
// bare), so errors.Is and Is still match after context is layered on.
var (
	ErrDeviceIO         = errors.New("device io")
	ErrParseFormat      = errors.New("parse format")
	ErrDecompress       = errors.New("decompress")
	ErrMissingAttribute = errors.New("missing attribute")
	ErrNotFile          = errors.New("not a file")
	ErrRootDirectory    = errors.New("root directory")
	ErrIndexDirectory   = errors.New("index directory")
	ErrRegex            = errors.New("invalid regex")
	ErrSerialize         = errors.New("serialize")
	ErrOutput            = errors.New("output")
	ErrCompressFailed    = errors.New("compress failed")
	ErrRemoteURL         = errors.New("remote url")
	ErrRemoteAPIKey      = errors.New("remote api key")
	ErrRemoteUpload      = errors.New("remote upload")
	ErrBadResponse       = errors.New("bad response")
	ErrMaxAttempts       = errors.New("max attempts")
	ErrBadStart          = errors.New("bad start path")
	ErrRtfCorrupted      = errors.New("rtf corrupted")
	ErrMft               = errors.New("mft")
)

// Wrap attaches a "[forensics] component: message" prefix and stack context
// (via pkg/errors) around a sentinel kind, matching §7's logging contract.
func Wrap(kind error, component, message string, cause error) error {
	if cause == nil {
		return pkgerrors.Wrap(kind, fmt.Sprintf("[forensics] %s: %s", component, message))
	}
	return pkgerrors.Wrap(fmt.Errorf("%w: %v", kind, cause), fmt.Sprintf("[forensics] %s: %s", component, message))
}

// Is reports whether err ultimately wraps kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
