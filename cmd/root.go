// Package cmd provides command-line interface functionality for GDTools.
// GDTools inspects and reads optical disc images and drives the way the
// Dreamcast GD-ROM drive presents them to the console.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
// It provides the main entry point for the GDTools application.
var rootCmd = &cobra.Command{
	Use:   "gdtools",
	Short: "Tools for GD-ROM and CD disc images",
	Long: `GDTools - Inspect and read disc images and drives through an
emulated Dreamcast GD-ROM drive.

Currently supports:
  - NRG, CDI, GDI and ISO image files
  - Real CD/DVD drives on Linux (SG_IO) and scripted drives (YAML)
  - Track listings, GD-ROM TOC replies, sector reads, ISO9660 extraction

Examples:
  gdtools image info game.gdi
  gdtools image toc --area 1 game.gdi
  gdtools image read --mode raw --count 16 game.cdi 150 -o sectors.bin
  gdtools image dump game.gdi ./output/
  gdtools drive --device /dev/sr0 info

Use 'gdtools [command] --help' for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// init initializes the root command with flags and configuration settings.
func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
}

// setVerbose applies the verbose flag of cmd
func setVerbose(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("error getting verbose flag: %w", err)
	}
	common.SetVerboseMode(verbose)
	return nil
}

// tocFlags returns the --area and --raw flags of a toc command
func tocFlags(cmd *cobra.Command) (int, bool, error) {
	area, err := cmd.Flags().GetInt("area")
	if err != nil {
		return 0, false, fmt.Errorf("error getting area flag: %w", err)
	}
	raw, err := cmd.Flags().GetBool("raw")
	if err != nil {
		return 0, false, fmt.Errorf("error getting raw flag: %w", err)
	}
	return area, raw, nil
}

// withOutput runs fn against the file named by the --output flag, or
// stdout when the flag is empty or "-".
func withOutput(cmd *cobra.Command, fn func(out io.Writer) error) error {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("error getting output flag: %w", err)
	}
	if path == "" || path == "-" {
		return fn(os.Stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutput, err)
	}
	if err := fn(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return common.FormatError(common.ErrFailedToWriteOutput, err)
	}
	return nil
}
