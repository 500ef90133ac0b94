// Package pkg provides the disc operations behind the gdtools commands:
// reports, TOC decoding, sector reads through the emulated drive and file
// system extraction.
package pkg

import (
	"fmt"
	"io"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"gopkg.in/yaml.v3"
)

// DiscFileExporter implements DiscExporter with YAML output
type DiscFileExporter struct{}

// NewDiscExporter creates a new exporter instance
func NewDiscExporter() *DiscFileExporter {
	return &DiscFileExporter{}
}

func (e *DiscFileExporter) encode(value interface{}, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// ExportReport writes the disc report as YAML
func (e *DiscFileExporter) ExportReport(report *DiscReport, writer io.Writer) error {
	return e.encode(report, writer)
}

// ExportTOC writes a decoded TOC as YAML
func (e *DiscFileExporter) ExportTOC(toc *TOCReport, writer io.Writer) error {
	return e.encode(toc, writer)
}

// ExportFiles writes the list of extracted files as YAML
func (e *DiscFileExporter) ExportFiles(files []FileReport, writer io.Writer) error {
	return e.encode(files, writer)
}

// BuildReport summarises disc
func BuildReport(disc gdrom.Disc, format string) *DiscReport {
	tracks := disc.Tracks()
	report := &DiscReport{
		Name:     disc.Name(),
		Format:   format,
		Type:     disc.Type().String(),
		TypeCode: fmt.Sprintf("0x%02X", byte(disc.Type())),
		Catalog:  disc.Catalog(),
		Title:    disc.Title(),
		Tracks:   make([]TrackReport, 0, len(tracks)),
	}

	for i, t := range tracks {
		report.Tracks = append(report.Tracks, TrackReport{
			Number:      i + 1,
			Session:     t.Session,
			Mode:        t.Mode.String(),
			Flags:       fmt.Sprintf("0x%02X", t.Flags),
			LBA:         t.LBA,
			MSF:         common.FormatMSF(t.LBA),
			Sectors:     t.SectorCount,
			SectorSize:  t.SectorSize,
			Offset:      t.Offset,
			Audio:       t.Mode.IsAudio(),
			ExternalSrc: t.Source != nil,
		})
	}
	if n := len(tracks); n > 0 {
		report.Sessions = tracks[n-1].Session + 1
		report.Leadout = tracks[n-1].EndLBA()
	}
	return report
}

// DecodeTOC turns a READ_TOC reply back into a report. Unused track
// entries are left out.
func DecodeTOC(toc []byte, area int) (*TOCReport, error) {
	if len(toc) < gdrom.TOCSize {
		return nil, fmt.Errorf("TOC reply too short: %d bytes", len(toc))
	}

	_, first := gdrom.DecodeTOCEntry(toc[gdrom.TOCFirstOffset:])
	_, last := gdrom.DecodeTOCEntry(toc[gdrom.TOCLastOffset:])
	_, leadout := gdrom.DecodeTOCEntry(toc[gdrom.TOCLeadout:])
	report := &TOCReport{
		Area:    area,
		First:   int(first >> 16),
		Last:    int(last >> 16),
		Leadout: leadout,
	}

	for i := 0; i < gdrom.MaxTracks; i++ {
		entry := toc[i*gdrom.TOCEntrySize : (i+1)*gdrom.TOCEntrySize]
		if entry[0] == 0xFF && common.Uint24BE(entry[1:4]) == 0xFFFFFF {
			continue
		}
		flags, lba := gdrom.DecodeTOCEntry(entry)
		report.Entries = append(report.Entries, TOCEntryReport{
			Track: i + 1,
			Flags: fmt.Sprintf("0x%02X", flags),
			LBA:   lba,
			MSF:   common.FormatMSF(lba),
		})
	}
	return report, nil
}
