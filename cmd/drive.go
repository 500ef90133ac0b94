// Package cmd provides command-line interface for physical and scripted drives.
// This file contains commands that query a CD/DVD drive over SG_IO, or a
// YAML drive script standing in for one, through the emulated GD-ROM drive.
package cmd

import (
	"fmt"
	"io"

	"github.com/hansbonini/gdtools/pkg"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// driveCmd represents the parent command for drive operations.
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Query a CD/DVD drive (SG_IO) or a scripted drive",
	Long: `Query an optical drive with MMC packet commands and present its disc
through the emulated GD-ROM drive.

The drive is opened from --device (Linux SG_IO). With --script a YAML file
describing the drive answers instead, which is useful without hardware.

Commands:
  info      Show the track list rebuilt from the drive's full TOC
  toc       Show the GD-ROM TOC reply for an area
  read      Read sectors through the emulated drive
  ls        List files of the ISO9660 file system
  dump      Extract files of the ISO9660 file system

Examples:
  gdtools drive --device /dev/sr0 info
  gdtools drive --script drive.yaml toc`,
}

// driveFlags selects the drive backing every drive subcommand
func driveFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("drive", pflag.ContinueOnError)
	flags.StringP("device", "d", "/dev/sr0", "Drive device path")
	flags.String("script", "", "YAML drive script used instead of a device")
	return flags
}

// openDrive mounts the disc of the drive selected by the flags of cmd
func openDrive(cmd *cobra.Command, processor *pkg.DiscProcessor) (*gdrom.Drive, error) {
	if err := setVerbose(cmd); err != nil {
		return nil, err
	}
	device, err := cmd.Flags().GetString("device")
	if err != nil {
		return nil, fmt.Errorf("error getting device flag: %w", err)
	}
	script, err := cmd.Flags().GetString("script")
	if err != nil {
		return nil, fmt.Errorf("error getting script flag: %w", err)
	}

	drive, err := processor.OpenDrive(device, script)
	if err != nil {
		return nil, fmt.Errorf("failed to open drive: %w", err)
	}
	return drive, nil
}

var driveInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the track list of the disc in a drive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		processor := pkg.NewDiscProcessor()
		drive, err := openDrive(cmd, processor)
		if err != nil {
			return err
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.Info(drive, out)
		})
	},
}

var driveTOCCmd = &cobra.Command{
	Use:   "toc",
	Short: "Show the GD-ROM TOC of the disc in a drive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		area, raw, err := tocFlags(cmd)
		if err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		drive, err := openDrive(cmd, processor)
		if err != nil {
			return err
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.TOC(drive, area, raw, out)
		})
	},
}

var driveReadCmd = &cobra.Command{
	Use:   "read [lba]",
	Short: "Read sectors from the disc in a drive",
	Long: `Read sectors from a drive with READ_SECTOR packets. The LBA includes the
150-sector pregap.

Example:
  gdtools drive --device /dev/sr0 read --count 16 --mode raw 150 -o head.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lba, count, mode, opts, err := readArgs(cmd, args[0])
		if err != nil {
			return err
		}

		processor := pkg.NewDiscProcessor()
		processor.SetOptions(opts)
		drive, err := openDrive(cmd, processor)
		if err != nil {
			return err
		}
		defer drive.Close()

		return runRead(cmd, processor, drive, lba, count, mode)
	},
}

var driveListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files on the disc in a drive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		processor := pkg.NewDiscProcessor()
		drive, err := openDrive(cmd, processor)
		if err != nil {
			return err
		}
		defer drive.Close()

		return withOutput(cmd, func(out io.Writer) error {
			return processor.List(drive, out)
		})
	},
}

var driveDumpCmd = &cobra.Command{
	Use:   "dump [output_directory]",
	Short: "Extract files from the disc in a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir := args[0]

		processor := pkg.NewDiscProcessor()
		drive, err := openDrive(cmd, processor)
		if err != nil {
			return err
		}
		defer drive.Close()

		fmt.Printf("Output directory: %s\n", outputDir)

		count, err := processor.Dump(drive, outputDir)
		if err != nil {
			return fmt.Errorf("failed to extract files: %w", err)
		}

		fmt.Printf("%d files extracted to: %s\n", count, outputDir)
		return nil
	},
}

// init initializes the drive command with its subcommands and flags.
func init() {
	rootCmd.AddCommand(driveCmd)

	driveCmd.PersistentFlags().AddFlagSet(driveFlags())

	driveCmd.AddCommand(driveInfoCmd)
	driveCmd.AddCommand(driveTOCCmd)
	driveCmd.AddCommand(driveReadCmd)
	driveCmd.AddCommand(driveListCmd)
	driveCmd.AddCommand(driveDumpCmd)

	for _, c := range []*cobra.Command{driveInfoCmd, driveTOCCmd, driveReadCmd, driveListCmd} {
		c.Flags().StringP("output", "o", "", "Output file (default stdout)")
	}
	driveTOCCmd.Flags().Int("area", gdrom.AreaSingleDensity, "TOC area: 0 single density, 1 high density")
	driveTOCCmd.Flags().Bool("raw", false, "Write the raw TOC reply instead of YAML")
	driveReadCmd.Flags().AddFlagSet(readFlags())
}
