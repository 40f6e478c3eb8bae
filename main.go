// dumpfloppy reads FM/MFM floppy disks with the PC floppy controller,
// probing the format of each track, and stores what it finds in ImageDisk
// (.IMD) images. The cat subcommand inspects those images and converts
// them to flat sector dumps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dumpfloppy/imd"
)

const (
	programName    = "dumpfloppy"
	programVersion = "1.0"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	root := &cobra.Command{
		Use:           "dumpfloppy",
		Short:         "Read FM/MFM floppy disks into IMD images",
		Long:          "Read FM/MFM floppy disks using the PC controller into ImageDisk (.IMD)\nimages, and convert those images to flat sector dumps.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// dump: the acquisition tool.
	var dump dumpConfig
	dumpCmd := &cobra.Command{
		Use:   "dump IMAGE-FILE",
		Short: "Read a floppy disk into an IMD image",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dump.Image = args[0]
			return processFloppy(&dump)
		},
	}
	dumpCmd.Flags().BoolVarP(&dump.AlwaysProbe, "always-probe", "a", false, "probe each track before reading")
	dumpCmd.Flags().IntVarP(&dump.Drive, "drive", "d", 0, "drive number to read from")
	dumpCmd.Flags().IntVarP(&dump.Tracks, "tracks", "t", -1, "drive has this many tracks (default autodetect)")
	dumpCmd.Flags().BoolVarP(&dump.ReadComment, "comment", "C", false, "read comment from stdin")
	dumpCmd.Flags().IntVarP(&dump.IgnoreSector, "ignore-sector", "S", -1, "ignore sectors with this logical ID")
	dumpCmd.Flags().IntVarP(&dump.MaxTries, "max-tries", "m", 10, "max reads of a failed track")
	dumpCmd.Flags().BoolVarP(&dump.Retry, "retry", "r", false, "retry failed reads in an existing IMD file")
	dumpCmd.Flags().BoolVar(&dump.UI, "ui", false, "fullscreen progress display")

	// cat: the converter.
	var cat catConfig
	var inCyls, inHeads, inSectors, outCyls, outHeads, outSectors string
	catCmd := &cobra.Command{
		Use:   "cat IMAGE-FILE",
		Short: "Inspect an IMD image or convert it to a flat file",
		Long: "Inspect an IMD image or convert it to a flat file.\n\n" +
			"Ranges are in the form FIRST:LAST, FIRST:, :LAST or ONLY, inclusive.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cat.Image = args[0]
			cat.Flatten.InCyls = imd.Range{Start: 0, End: imd.MaxCyls}
			cat.Flatten.InHeads = imd.Range{Start: 0, End: imd.MaxHeads}
			cat.Flatten.InSectors = imd.Range{Start: 0, End: imd.MaxSectors}
			cat.Flatten.OutCyls = imd.UnsetRange()
			cat.Flatten.OutHeads = imd.UnsetRange()
			cat.Flatten.OutSectors = imd.UnsetRange()

			for _, rng := range []struct {
				arg string
				r   *imd.Range
			}{
				{inCyls, &cat.Flatten.InCyls},
				{inHeads, &cat.Flatten.InHeads},
				{inSectors, &cat.Flatten.InSectors},
				{outCyls, &cat.Flatten.OutCyls},
				{outHeads, &cat.Flatten.OutHeads},
				{outSectors, &cat.Flatten.OutSectors},
			} {
				if rng.arg == "" {
					continue
				}
				if err := parseRangeInto(rng.arg, rng.r); err != nil {
					return err
				}
			}

			// Describing the image is the default action, and a hexdump
			// implies it.
			if !cat.ShowComment && cat.FlatFile == "" {
				cat.Verbose = true
			}
			if cat.ShowData {
				cat.Verbose = true
			}

			return runCat(&cat)
		},
	}
	catCmd.Flags().BoolVarP(&cat.ShowComment, "comment", "n", false, "write comment to stdout")
	catCmd.Flags().StringVarP(&cat.FlatFile, "out", "o", "", "write sector data to flat file")
	catCmd.Flags().BoolVarP(&cat.Verbose, "verbose", "v", false, "describe loaded image (default action)")
	catCmd.Flags().BoolVarP(&cat.ShowData, "hexdump", "x", false, "show hexdump of data in image")
	catCmd.Flags().BoolVarP(&cat.Flatten.Permissive, "permissive", "p", false, "ignore duplicated input sectors")
	catCmd.Flags().StringVarP(&inCyls, "cylinders", "c", "", "limit input cylinders (default all)")
	// Register a long-only help flag before cobra injects its default, so
	// the -h shorthand stays free for the head range.
	catCmd.Flags().Bool("help", false, "help for cat")
	catCmd.Flags().Lookup("help").Hidden = true
	catCmd.Flags().StringVarP(&inHeads, "heads", "h", "", "limit input heads (default all)")
	catCmd.Flags().StringVarP(&inSectors, "sectors", "s", "", "limit input sectors (default all)")
	catCmd.Flags().StringVarP(&outCyls, "out-cylinders", "C", "", "output cylinders (default autodetect)")
	catCmd.Flags().StringVarP(&outHeads, "out-heads", "H", "", "output heads (default autodetect)")
	catCmd.Flags().StringVarP(&outSectors, "out-sectors", "S", "", "output sectors (default autodetect)")

	root.AddCommand(dumpCmd, catCmd)
	must(root.Execute())
}
