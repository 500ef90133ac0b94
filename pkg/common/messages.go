package common

import (
	"fmt"
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToOpenImage      = "failed to open image file"
	ErrFailedToStatImage      = "failed to get image file info"
	ErrUnknownImageFormat     = "unknown image format"
	ErrFailedToReadFooter     = "failed to read image footer"
	ErrFailedToReadChunk      = "failed to read NRG chunk"
	ErrFailedToReadCDIHeader  = "failed to read CDI header"
	ErrTrackMarkerNotFound    = "track start marker not found, error reading CDI image"
	ErrInvalidTrackCount      = "invalid number of tracks (%d)"
	ErrInvalidModeSize        = "invalid combination of mode %d with size code %d"
	ErrUnsupportedTrackMode   = "unsupported track mode %d"
	ErrUnsupportedSectorSize  = "unsupported sector size %d"
	ErrTrackCountMismatch     = "track count mismatch: %s declares %d, cue sheet declares %d"
	ErrTrackOverlap           = "track %d (lba %d, %d sectors) overlaps track %d at lba %d"
	ErrTrackOrder             = "track %d at lba %d does not start before track %d at lba %d"
	ErrTrackBeyondFile        = "track %d extends to byte %d, beyond backing file size %d"
	ErrFailedToParseGDILine   = "failed to parse GDI track line %d"
	ErrFailedToOpenTrackFile  = "failed to open track file"
	ErrFailedToMountImage     = "failed to mount image %s: %v"
	ErrFailedToQueryDrive     = "failed to query drive"
	ErrFailedToReadTOC        = "failed to read TOC"
	ErrFailedToReadDescriptor = "failed to read volume descriptor"
	ErrFailedToCreateOutput   = "failed to create output file"
	ErrFailedToWriteOutput    = "failed to write output file"
	ErrFailedToLoadScript     = "failed to load drive script"
)

// Info messages
const (
	InfoImageMounted     = "Mounted %s image %s: %d tracks, disc type 0x%02X"
	InfoDiscUnmounted    = "Disc unmounted"
	InfoDriveIdentified  = "Drive identified: %s"
	InfoTOCRebuilt       = "TOC rebuilt for %s: %d tracks, leadout %d"
	InfoMediaChanged     = "Media change detected on %s"
	InfoTransferMode     = "Set %s transfer mode: %d"
	InfoSectorsExtracted = "Extracted %d bytes from %d sectors to: %s"
	InfoFilesExtracted   = "Extracted %d files to: %s"
)

// Debug messages
const (
	DebugNRGChunk       = "NRG chunk %s at offset %d, %d bytes"
	DebugNRGFooter      = "NRG footer: version %s, chunk directory at %d"
	DebugCDITrailer     = "CDI trailer: version 0x%08X, header at %d"
	DebugCDITrack       = "CDI track %d: session %d, mode %d, size code %d, lba %d, length %d, pregap %d"
	DebugTrackParsed    = "Track %d: session %d, mode %s, flags 0x%02X, lba %d, %d sectors of %d bytes at offset %d"
	DebugPacketCommand  = "Packet command % X"
	DebugPacketResult   = "Packet result 0x%04X"
	DebugPIOReadArmed   = "PIO read armed: %d bytes in blocks of %d"
	DebugPIOWriteArmed  = "PIO write armed: %d bytes"
	DebugTOCEntry       = "TOC entry: session %d, adr %d, point 0x%02X"
	DebugDirectoryEntry = "Directory entry %s: lba %d, size %d"
)

// Warning messages
const (
	WarnSenseError          = "Device reported sense 0x%04X for command 0x%02X"
	WarnUnimplementedCmd    = "IDE: unimplemented command 0x%02X"
	WarnUnimplementedFeat   = "IDE: unimplemented feature 0x%02X"
	WarnCommandWhileBusy    = "IDE: command 0x%02X written while busy, ignored"
	WarnUnknownPacket       = "IDE: unknown packet command 0x%02X"
	WarnUnknownNRGChunk     = "Skipping unknown NRG chunk %s"
	WarnDiscNotReady        = "Drive %s not ready: %v"
	WarnAudioRangeRejected  = "Play request %d-%d does not lie in an audio track"
	WarnTitleUnavailable    = "Could not read disc title: %v"
	WarnSkippingInvalidFile = "Skipping invalid entry: %s (lba %d, size %d)"
	WarnFailedToCloseDisc   = "Failed to close disc %s: %v"
)

// Logger is the logging sink handed to disc and controller components
type Logger interface {
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message string, args ...interface{})
}

// StdLogger routes Logger calls to the package-level log helpers
type StdLogger struct{}

func (StdLogger) Info(message string, args ...interface{})  { LogInfo(message, args...) }
func (StdLogger) Warn(message string, args ...interface{})  { LogWarn(message, args...) }
func (StdLogger) Error(message string, args ...interface{}) { LogError(message, args...) }

// LoggerOrDefault returns l, or a StdLogger when l is nil
func LoggerOrDefault(l Logger) Logger {
	if l == nil {
		return StdLogger{}
	}
	return l
}

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}

// FormatError creates a formatted error with additional context
func FormatError(baseMessage string, details interface{}) error {
	if err, ok := details.(error); ok {
		return fmt.Errorf("%s: %w", baseMessage, err)
	}
	return fmt.Errorf("%s: %v", baseMessage, details)
}
