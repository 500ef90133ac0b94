package gdrom

import (
	"errors"

	"github.com/hansbonini/gdtools/pkg/common"
)

var (
	// ErrInvalidImage is wrapped by every structural parse failure.
	ErrInvalidImage = errors.New("invalid disc image")

	// ErrUnknownFormat is returned when no image format accepts a file.
	ErrUnknownFormat = errors.New(common.ErrUnknownImageFormat)
)

// SenseOf maps an error returned by a Disc operation to the packet status
// reported to the host. nil is ErrOK; a wrapped Error is returned as is; any
// other failure (host I/O, transport) is ErrNoResponse.
func SenseOf(err error) Error {
	if err == nil {
		return ErrOK
	}
	var sense Error
	if errors.As(err, &sense) {
		return sense
	}
	return ErrNoResponse
}
