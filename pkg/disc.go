package pkg

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"github.com/hansbonini/gdtools/pkg/ide"
	"github.com/hansbonini/gdtools/pkg/iso9660"
	"github.com/hansbonini/gdtools/pkg/mmc"
)

// sectorsPerPacket bounds how many sectors one READ_SECTOR packet asks for
const sectorsPerPacket = 32

// DiscProcessor runs the gdtools operations against a mounted disc. Reads
// go through the emulated ATAPI controller so they exercise the same path
// the console does.
type DiscProcessor struct {
	exporter DiscExporter
	options  ide.Options
	log      common.Logger
}

// NewDiscProcessor creates a processor with default controller options
func NewDiscProcessor() *DiscProcessor {
	return &DiscProcessor{
		exporter: NewDiscExporter(),
		options:  ide.DefaultOptions(),
		log:      common.StdLogger{},
	}
}

// SetOptions replaces the controller options
func (p *DiscProcessor) SetOptions(opts ide.Options) {
	p.options = opts
}

// OpenImage mounts an image file in a new drive
func (p *DiscProcessor) OpenImage(filename string) (*gdrom.Drive, error) {
	drive := gdrom.NewDrive(p.log, nil)
	if err := drive.MountImage(filename); err != nil {
		return nil, err
	}
	return drive, nil
}

// OpenDrive mounts the disc in a real drive, or in a scripted one when
// script is set.
func (p *DiscProcessor) OpenDrive(device, script string) (*gdrom.Drive, error) {
	var transport gdrom.Transport
	name := device
	if script != "" {
		t, err := mmc.LoadScript(script)
		if err != nil {
			return nil, err
		}
		transport, name = t, script
	} else {
		d, err := mmc.OpenDevice(device)
		if err != nil {
			return nil, err
		}
		transport = d
	}

	disc, err := gdrom.NewScsiDisc(name, transport, p.log)
	if err != nil {
		if c, ok := transport.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}

	drive := gdrom.NewDrive(p.log, nil)
	drive.Mount(disc)
	return drive, nil
}

func (p *DiscProcessor) controller(drive *gdrom.Drive) *ide.Controller {
	c := ide.NewController(drive, p.options, p.log)
	drive.SetChangeHook(c.DiscChanged)
	return c
}

func mountedDisc(drive *gdrom.Drive) (gdrom.Disc, error) {
	disc := drive.Disc()
	if disc == nil {
		return nil, gdrom.ErrNoDisc
	}
	return disc, nil
}

// Info writes the YAML report of the mounted disc
func (p *DiscProcessor) Info(drive *gdrom.Drive, writer io.Writer) error {
	disc, err := mountedDisc(drive)
	if err != nil {
		return err
	}

	format := ""
	if image, ok := disc.(*gdrom.ImageDisc); ok {
		format = image.Format()
	}
	return p.exporter.ExportReport(BuildReport(disc, format), writer)
}

// TOC issues READ_TOC for area and writes the reply, decoded as YAML or
// as the raw 408 bytes.
func (p *DiscProcessor) TOC(drive *gdrom.Drive, area int, raw bool, writer io.Writer) error {
	cmd := gdrom.Packet{ide.PktReadTOC, byte(area & 1), 0, byte(gdrom.TOCSize >> 8), byte(gdrom.TOCSize & 0xFF)}
	toc, err := p.controller(drive).Execute(cmd, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", common.ErrFailedToReadTOC, err)
	}

	if raw {
		if _, err := writer.Write(toc); err != nil {
			return common.FormatError(common.ErrFailedToWriteOutput, err)
		}
		return nil
	}

	report, err := DecodeTOC(toc, area)
	if err != nil {
		return err
	}
	return p.exporter.ExportTOC(report, writer)
}

// ReadSectors reads count sectors from lba with READ_SECTOR packets and
// writes the returned bytes. It returns the number of bytes written.
func (p *DiscProcessor) ReadSectors(drive *gdrom.Drive, lba, count uint32, mode gdrom.ReadMode, writer io.Writer) (int, error) {
	if count == 0 {
		return 0, gdrom.ErrBadField
	}

	ctrl := p.controller(drive)
	total := 0
	for done := uint32(0); done < count; {
		batch := min(count-done, sectorsPerPacket)
		start := lba + done

		cmd := gdrom.Packet{ide.PktReadSector, byte(mode)}
		common.PutUint24BE(cmd[2:5], start)
		common.PutUint24BE(cmd[8:11], batch)

		data, err := ctrl.Execute(cmd, p.options.BlockSize)
		if err != nil {
			return total, fmt.Errorf("read sectors %d-%d: %w", start, start+batch-1, err)
		}
		n, err := writer.Write(data)
		total += n
		if err != nil {
			return total, common.FormatError(common.ErrFailedToWriteOutput, err)
		}
		done += batch
	}
	return total, nil
}

// List writes the file system listing of the mounted disc
func (p *DiscProcessor) List(drive *gdrom.Drive, writer io.Writer) error {
	reader, err := p.fileSystem(drive)
	if err != nil {
		return err
	}

	var files []FileReport
	err = reader.Walk(func(entry iso9660.Entry) error {
		if !entry.IsDir {
			files = append(files, FileReport{Path: entry.Path, LBA: entry.LBA, MSF: entry.MSF, Size: entry.Size})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return p.exporter.ExportFiles(files, writer)
}

// Dump extracts every file of the mounted disc below outputDir
func (p *DiscProcessor) Dump(drive *gdrom.Drive, outputDir string) (int, error) {
	reader, err := p.fileSystem(drive)
	if err != nil {
		return 0, err
	}

	count, err := reader.ExtractAll(outputDir)
	if err != nil {
		return count, err
	}
	common.LogInfo(common.InfoFilesExtracted, count, outputDir)
	return count, nil
}

func (p *DiscProcessor) fileSystem(drive *gdrom.Drive) (*iso9660.Reader, error) {
	disc, err := mountedDisc(drive)
	if err != nil {
		return nil, err
	}
	return iso9660.NewReader(disc)
}

var readModeNames = map[string]gdrom.ReadMode{
	"logical": gdrom.ReadLogical,
	"data":    gdrom.ReadLogical,
	"raw":     gdrom.ReadRaw,
	"cdda":    gdrom.ReadCDDA,
	"mode1":   gdrom.ReadMode1 | gdrom.ReadData,
	"mode2":   gdrom.ReadMode2 | gdrom.ReadData,
	"form1":   gdrom.ReadMode2Form1 | gdrom.ReadData,
	"form2":   gdrom.ReadMode2Form2 | gdrom.ReadData,
	"headers": gdrom.ReadHeader | gdrom.ReadSubHeader | gdrom.ReadData,
}

// ParseReadMode accepts a mode name or a numeric read-mode byte
func ParseReadMode(s string) (gdrom.ReadMode, error) {
	if mode, ok := readModeNames[strings.ToLower(s)]; ok {
		return mode, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown read mode %q", s)
	}
	return gdrom.ReadMode(v), nil
}
