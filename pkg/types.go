package pkg

import "io"

// TrackReport describes one track in a disc report
type TrackReport struct {
	Number      int    `yaml:"number"`
	Session     int    `yaml:"session"`
	Mode        string `yaml:"mode"`
	Flags       string `yaml:"flags"`
	LBA         uint32 `yaml:"lba"`
	MSF         string `yaml:"msf"`
	Sectors     uint32 `yaml:"sectors"`
	SectorSize  int    `yaml:"sector_size"`
	Offset      int64  `yaml:"offset"`
	Audio       bool   `yaml:"audio"`
	ExternalSrc bool   `yaml:"external_file,omitempty"`
}

// DiscReport is the YAML summary of a mounted disc
type DiscReport struct {
	Name     string        `yaml:"name"`
	Format   string        `yaml:"format,omitempty"`
	Type     string        `yaml:"type"`
	TypeCode string        `yaml:"type_code"`
	Catalog  string        `yaml:"catalog,omitempty"`
	Title    string        `yaml:"title,omitempty"`
	Sessions int           `yaml:"sessions"`
	Leadout  uint32        `yaml:"leadout"`
	Tracks   []TrackReport `yaml:"tracks"`
}

// TOCEntryReport is one decoded word of a GD-ROM TOC reply
type TOCEntryReport struct {
	Track int    `yaml:"track"`
	Flags string `yaml:"flags"`
	LBA   uint32 `yaml:"lba"`
	MSF   string `yaml:"msf"`
}

// TOCReport is the YAML form of a READ_TOC reply for one area
type TOCReport struct {
	Area    int              `yaml:"area"`
	First   int              `yaml:"first_track"`
	Last    int              `yaml:"last_track"`
	Leadout uint32           `yaml:"leadout"`
	Entries []TOCEntryReport `yaml:"entries"`
}

// FileReport lists one file extracted from a disc
type FileReport struct {
	Path string `yaml:"path"`
	LBA  uint32 `yaml:"lba"`
	MSF  string `yaml:"msf"`
	Size uint32 `yaml:"size"`
}

// DiscExporter writes disc reports to external formats
type DiscExporter interface {
	ExportReport(report *DiscReport, writer io.Writer) error
	ExportTOC(toc *TOCReport, writer io.Writer) error
	ExportFiles(files []FileReport, writer io.Writer) error
}
