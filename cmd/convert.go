package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cadence/logging"
	"cadence/services"
	"cadence/types"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	var (
		settings types.QualitySettings
		output   string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert one audio file with ffmpeg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(input); err != nil {
				return err
			}

			ext, err := services.OutputExtension(settings.Format)
			if err != nil {
				return err
			}
			if output == "" {
				base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				output = filepath.Join(filepath.Dir(input), cfg.Library.ConvertedDir, base+ext)
			}
			if filepath.Clean(output) == input {
				return errors.New("output would overwrite the input file")
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}

			transcoder := services.NewFFmpegTranscoder(cfg.Conversion.FFmpegPath, cfg.Conversion.FFprobePath, logging.Component(logger, "ffmpeg"))

			var progress services.ProgressFunc
			if isTerminal(os.Stderr) {
				bar := progressbar.NewOptions(100,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription(filepath.Base(input)),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowElapsedTimeOnFinish(),
				)
				defer bar.Finish()
				progress = func(percent float64) {
					_ = bar.Set(int(percent))
				}
			}

			ctx := cmd.Context()
			if cfg.Conversion.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Conversion.Timeout)
				defer cancel()
			}

			if err := transcoder.Transcode(ctx, services.TranscodeRequest{
				Input:    input,
				Output:   output,
				Settings: settings,
			}, progress); err != nil {
				_ = os.Remove(output)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&settings.Format, "format", "f", "", "target format (flac, alac, wav, aiff, opus, vorbis, aac, mp3)")
	cmd.Flags().StringVar(&settings.Bitrate, "bitrate", "", "target bitrate for lossy formats, for example \"320 kbps\"")
	cmd.Flags().StringVar(&settings.BitDepth, "bit-depth", "", "target bit depth, for example \"16 bit\"")
	cmd.Flags().StringVar(&settings.SampleRate, "sample-rate", "", "target sample rate, for example \"44.1 kHz\"")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output path (default <dir>/converted/<name><ext>)")
	_ = cmd.MarkFlagRequired("format")
	return cmd
}
