// Package cmd provides command-line interface for CD image inspection.
// This file contains commands for listing and extracting files from CD images
// used in PlayStation games.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
	"github.com/spf13/cobra"
)

var cdLBAFrom common.Hex

// cdCmd represents the parent command for all CD image operations.
var cdCmd = &cobra.Command{
	Use:   "cd",
	Short: "Inspect CD image files from PlayStation games",
	Long: `Inspect raw CD image files used in PlayStation games.

Commands:
  ls        List the files of the ISO9660 file system
  extract   Extract one file from the image

Examples:
  blazetools cd ls original.bin
  blazetools cd extract original.bin BLAZE.ALL ./BLAZE.ALL`,
}

// cdLsCmd lists every file of a CD image with the values a plan needs:
// LBA and size for the image layout.
var cdLsCmd = &cobra.Command{
	Use:   "ls [input_file]",
	Short: "List files in a CD image",
	Long: `List files in a CD image (.bin format).

For each entry the command prints:
  - MSF (Minutes:Seconds:Frames)
  - LBA (Logical Block Address)
  - Size in bytes and in sectors
  - Path within the CD structure

Use --lba-from to hide entries stored before a given LBA.

Example:
  blazetools cd ls original.bin
  blazetools cd ls --lba-from 0x27000 original.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := verboseFlag(cmd); err != nil {
			return err
		}
		reader, err := openCD(args[0])
		if err != nil {
			return err
		}
		files, err := reader.ListFiles()
		if err != nil {
			return fmt.Errorf("failed to list CD image files: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-8s  %-8s  %10s  %7s  %s\n", "MSF", "LBA", "SIZE", "SECTORS", "PATH")
		for _, f := range files {
			if f.LBA < uint32(cdLBAFrom) {
				continue
			}
			p := f.Path
			if f.IsDir {
				p += "/"
			}
			fmt.Fprintf(out, "%-8s  %-8d  %10d  %7d  %s\n",
				common.LBAToMSF(f.LBA), f.LBA, f.Size, common.GetSizeInSectors(f.Size), p)
		}
		return nil
	},
}

// cdExtractCmd writes the user data of one contained file to disk
var cdExtractCmd = &cobra.Command{
	Use:   "extract [input_file] [name] [output_file]",
	Short: "Extract one file from a CD image",
	Long: `Extract one file from a CD image (.bin format).

The name is matched case-insensitively, either as a bare file name or as a
path within the CD structure. Only the 2048-byte user data of each sector is
written, so the result can be edited and imported again with the
archive_import module.

Example:
  blazetools cd extract original.bin BLAZE.ALL ./BLAZE.ALL`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := verboseFlag(cmd); err != nil {
			return err
		}
		reader, err := openCD(args[0])
		if err != nil {
			return err
		}
		file, err := reader.Locate(args[1])
		if err != nil {
			return err
		}
		common.LogDebug(common.DebugDirectoryEntry, file.Name, file.LBA, file.Length)

		if err := reader.ExtractFile(file, args[2]); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s (%d bytes, LBA %d) to %s\n",
			file.Name, file.Length, file.LBA, filepath.Clean(args[2]))
		return nil
	},
}

func openCD(path string) (*psx.CDReader, error) {
	buf, err := psx.LoadBuffer(path)
	if err != nil {
		return nil, err
	}
	reader := psx.NewCDReader(buf)
	if err := reader.ValidateISO9660(); err != nil {
		return nil, err
	}
	return reader, nil
}

// init initializes the CD command with its subcommands and flags.
func init() {
	rootCmd.AddCommand(cdCmd)
	cdCmd.AddCommand(cdLsCmd)
	cdCmd.AddCommand(cdExtractCmd)

	cdLsCmd.Flags().Var(&cdLBAFrom, "lba-from", "Only list entries at or after this LBA (decimal or 0x hex)")
	for _, c := range []*cobra.Command{cdLsCmd, cdExtractCmd} {
		c.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	}
}
