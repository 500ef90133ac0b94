// Package cmd provides command-line interface for disc image processing.
// This file contains commands that mount an image file in the emulated
// drive and report or read its contents.
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/hansbonini/gdtools/pkg"
	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"github.com/hansbonini/gdtools/pkg/ide"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// imageCmd represents the parent command for all image file operations.
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Process disc image files (NRG, CDI, GDI, ISO)",
	Long: `Process disc image files by mounting them in an emulated GD-ROM drive.

Commands:
  info      Show the track list and disc type
  toc       Show the GD-ROM TOC reply for an area
  read      Read sectors through the emulated drive
  ls        List files of the ISO9660 file system
  dump      Extract files of the ISO9660 file system

Examples:
  gdtools image info game.nrg
  gdtools image dump game.gdi ./output/`,
}

var imageInfoCmd = &cobra.Command{
	Use:   "info [input_file]",
	Short: "Show the track list of an image",
	Long: `Mount an image and print its disc type, title and track list as YAML.

Example:
  gdtools image info game.cdi`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setVerbose(cmd); err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		drive, err := processor.OpenImage(args[0])
		if err != nil {
			return fmt.Errorf("failed to mount image: %w", err)
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.Info(drive, out)
		})
	},
}

var imageTOCCmd = &cobra.Command{
	Use:   "toc [input_file]",
	Short: "Show the GD-ROM TOC of an image",
	Long: `Mount an image and issue READ_TOC to the emulated drive.

Area 0 is the single-density area (the whole disc for CDs), area 1 the
high-density area of a GD-ROM. With --raw the 408-byte reply is written
unchanged.

Example:
  gdtools image toc --area 1 game.gdi`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setVerbose(cmd); err != nil {
			return err
		}
		area, raw, err := tocFlags(cmd)
		if err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		drive, err := processor.OpenImage(args[0])
		if err != nil {
			return fmt.Errorf("failed to mount image: %w", err)
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.TOC(drive, area, raw, out)
		})
	},
}

var imageReadCmd = &cobra.Command{
	Use:   "read [input_file] [lba]",
	Short: "Read sectors through the emulated drive",
	Long: `Mount an image and read sectors with READ_SECTOR packets.

The LBA includes the 150-sector pregap, so the first sector of a disc is
150. Read modes: logical, raw, cdda, mode1, mode2, form1, form2, headers,
or a numeric read-mode byte such as 0x28.

Example:
  gdtools image read --count 16 --mode raw game.nrg 150 -o head.bin`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setVerbose(cmd); err != nil {
			return err
		}
		lba, count, mode, opts, err := readArgs(cmd, args[1])
		if err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		processor.SetOptions(opts)
		drive, err := processor.OpenImage(args[0])
		if err != nil {
			return fmt.Errorf("failed to mount image: %w", err)
		}
		defer drive.Close()

		return runRead(cmd, processor, drive, lba, count, mode)
	},
}

var imageListCmd = &cobra.Command{
	Use:   "ls [input_file]",
	Short: "List files of the ISO9660 file system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setVerbose(cmd); err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		drive, err := processor.OpenImage(args[0])
		if err != nil {
			return fmt.Errorf("failed to mount image: %w", err)
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.List(drive, out)
		})
	},
}

var imageDumpCmd = &cobra.Command{
	Use:   "dump [input_file] [output_directory]",
	Short: "Extract files from a disc image",
	Long: `Extract every file of the ISO9660 file system stored in the boot track
(the first data track of the last session).

When verbose mode is enabled (-v), each directory entry is logged with its
LBA and size.

Example:
  gdtools image dump game.gdi ./output/
  gdtools image dump -v game.cdi ./output/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setVerbose(cmd); err != nil {
			return err
		}
		inputFile, outputDir := args[0], args[1]

		processor := pkg.NewDiscProcessor()
		drive, err := processor.OpenImage(inputFile)
		if err != nil {
			return fmt.Errorf("failed to mount image: %w", err)
		}
		defer drive.Close()

		fmt.Printf("Processing disc image: %s\n", inputFile)
		fmt.Printf("Output directory: %s\n", outputDir)

		count, err := processor.Dump(drive, outputDir)
		if err != nil {
			return fmt.Errorf("failed to extract files: %w", err)
		}

		fmt.Printf("%d files extracted to: %s\n", count, outputDir)
		return nil
	},
}

// readFlags are the options shared by the image and drive read commands
func readFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("read", pflag.ContinueOnError)
	flags.Uint32P("count", "n", 1, "Number of sectors to read")
	flags.StringP("mode", "m", "logical", "Read mode name or byte")
	flags.Int("block", ide.DefaultBlockSize, "PIO block size in bytes (one interrupt per block)")
	return flags
}

// readArgs parses the LBA argument and the read flags
func readArgs(cmd *cobra.Command, lbaArg string) (uint32, uint32, gdrom.ReadMode, ide.Options, error) {
	opts := ide.DefaultOptions()

	lba, err := strconv.ParseUint(lbaArg, 0, 32)
	if err != nil {
		return 0, 0, 0, opts, fmt.Errorf("invalid LBA %q: %w", lbaArg, err)
	}
	count, err := cmd.Flags().GetUint32("count")
	if err != nil {
		return 0, 0, 0, opts, err
	}
	modeName, err := cmd.Flags().GetString("mode")
	if err != nil {
		return 0, 0, 0, opts, err
	}
	mode, err := pkg.ParseReadMode(modeName)
	if err != nil {
		return 0, 0, 0, opts, err
	}
	opts.BlockSize, err = cmd.Flags().GetInt("block")
	if err != nil {
		return 0, 0, 0, opts, err
	}
	return uint32(lba), count, mode, opts, nil
}

func runRead(cmd *cobra.Command, processor *pkg.DiscProcessor, drive *gdrom.Drive, lba, count uint32, mode gdrom.ReadMode) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("error getting output flag: %w", err)
	}
	return withOutput(cmd, func(out io.Writer) error {
		n, err := processor.ReadSectors(drive, lba, count, mode, out)
		if err != nil {
			return err
		}
		if output != "" && output != "-" {
			common.LogInfo(common.InfoSectorsExtracted, n, count, output)
		}
		return nil
	})
}

// init initializes the image command with its subcommands and flags.
func init() {
	rootCmd.AddCommand(imageCmd)

	imageCmd.AddCommand(imageInfoCmd)
	imageCmd.AddCommand(imageTOCCmd)
	imageCmd.AddCommand(imageReadCmd)
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageDumpCmd)

	for _, c := range []*cobra.Command{imageInfoCmd, imageTOCCmd, imageReadCmd, imageListCmd} {
		c.Flags().StringP("output", "o", "", "Output file (default stdout)")
	}
	imageTOCCmd.Flags().Int("area", gdrom.AreaSingleDensity, "TOC area: 0 single density, 1 high density")
	imageTOCCmd.Flags().Bool("raw", false, "Write the raw TOC reply instead of YAML")
	imageReadCmd.Flags().AddFlagSet(readFlags())
}
