package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"cadence/logging"
	"cadence/services"
	"cadence/types"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Scan a music folder and print the library without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			probe := services.NewMetadataProbe(cfg.Conversion.FFprobePath, logging.Component(logger, "probe"))
			classifier := services.NewDirectoryClassifier(probe, cfg.Library.Extensions, logging.Component(logger, "classifier"))
			scanner := services.NewLibraryScanner(classifier, cfg.Library.ConvertedDir, cfg.Library.ScanConcurrency, logging.Component(logger, "scanner"))

			var progress services.ScanProgressFunc
			if isTerminal(os.Stderr) {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("scanning"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionClearOnFinish(),
				)
				defer bar.Finish()
				progress = func(done, total int, artist string) {
					bar.ChangeMax(total)
					bar.Describe(artist)
					_ = bar.Set(done)
				}
			}

			artists, err := scanner.ScanWithProgress(cmd.Context(), root, progress)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(artists)
			}
			renderLibrary(out, artists)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the library tree as JSON")
	return cmd
}

// renderLibrary prints one row per album followed by every anomaly
func renderLibrary(w io.Writer, artists []types.Artist) {
	albums := table.NewWriter()
	albums.SetOutputMirror(w)
	albums.SetStyle(table.StyleRounded)
	albums.AppendHeader(table.Row{"Artist", "Album", "Discs", "Tracks", "Quality"})

	anomalies := table.NewWriter()
	anomalies.SetOutputMirror(w)
	anomalies.SetStyle(table.StyleRounded)
	anomalies.AppendHeader(table.Row{"Path", "Reason"})

	tracks := 0
	for _, artist := range artists {
		for _, item := range artist.UnexpectedItems {
			anomalies.AppendRow(table.Row{item.Path, item.Reason})
		}
		for _, album := range artist.Albums {
			count, quality := 0, ""
			for _, disc := range album.Discs {
				count += len(disc.Tracks)
				if quality == "" && len(disc.Tracks) > 0 {
					quality = disc.Tracks[0].QualitySummary()
				}
			}
			tracks += count
			albums.AppendRow(table.Row{artist.Name, album.Title, len(album.Discs), count, quality})
			for _, item := range album.UnexpectedItems {
				anomalies.AppendRow(table.Row{item.Path, item.Reason})
			}
		}
	}

	albums.AppendFooter(table.Row{strconv.Itoa(len(artists)) + " artists", "", "", tracks, ""})
	albums.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	albums.Render()

	if anomalies.Length() > 0 {
		fmt.Fprintln(w)
		anomalies.Render()
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
