package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/toongate/pkg/convert"
	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
	"github.com/pario-ai/toongate/pkg/savings"
)

func newConvertCmd(configPath *string) *cobra.Command {
	var (
		decode          bool
		showSavings     bool
		lengthMarkers   bool
		sortKeys        bool
		dedupeArrays    bool
		trimStrings     bool
		compactBooleans bool
		maxStringLength int
	)

	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert JSON to TOON (or TOON to JSON with --decode)",
		Long: "Reads a JSON document from the file argument or stdin and writes its TOON encoding to stdout.\n" +
			"With --decode the direction is reversed. The --savings report goes to stderr.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("length-markers") {
				cfg.Conversion.LengthMarkers = lengthMarkers
			}
			conv := convert.New(convert.TOONCodec{LengthMarkers: cfg.Conversion.LengthMarkers})
			out := cmd.OutOrStdout()

			if decode {
				res := conv.FromTOON(string(input))
				if !res.Success {
					return errors.New(res.Error)
				}
				data, err := json.MarshalIndent(normalize.ToPlain(res.Decoded), "", "  ")
				if err != nil {
					return fmt.Errorf("encode json: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			opts := cfg.Conversion.Optimization
			flags := cmd.Flags()
			if flags.Changed("sort-keys") {
				opts.SortKeys = models.Bool(sortKeys)
			}
			if flags.Changed("dedupe-arrays") {
				opts.DedupeArrays = models.Bool(dedupeArrays)
			}
			if flags.Changed("trim-strings") {
				opts.TrimStrings = models.Bool(trimStrings)
			}
			if flags.Changed("compact-booleans") {
				opts.CompactBooleans = compactBooleans
			}
			if flags.Changed("max-string-length") {
				opts.MaxStringLength = maxStringLength
			}

			payload, err := normalize.DecodeJSON(input)
			if err != nil {
				return fmt.Errorf("parse json: %w", err)
			}
			res := conv.ToTOON(payload, opts)
			if !res.Success {
				return errors.New(res.Error)
			}
			if _, err := fmt.Fprintln(out, res.Data); err != nil {
				return err
			}

			if showSavings {
				var compact bytes.Buffer
				if err := json.Compact(&compact, input); err != nil {
					return fmt.Errorf("compact json: %w", err)
				}
				printSavings(cmd.ErrOrStderr(), savings.Calculate(compact.String(), res.Data, cfg.Pricing))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&decode, "decode", "d", false, "decode TOON input to JSON")
	f.BoolVar(&showSavings, "savings", false, "print a token savings report to stderr")
	f.BoolVar(&lengthMarkers, "length-markers", false, "prefix array lengths with # in TOON output")
	f.BoolVar(&sortKeys, "sort-keys", true, "sort object keys")
	f.BoolVar(&dedupeArrays, "dedupe-arrays", true, "drop repeated array elements")
	f.BoolVar(&trimStrings, "trim-strings", true, "trim surrounding whitespace from strings")
	f.BoolVar(&compactBooleans, "compact-booleans", false, "rewrite boolean fields as 0/1")
	f.IntVar(&maxStringLength, "max-string-length", 0, "truncate longer strings (0 disables)")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func printSavings(w io.Writer, c models.SavingsCalculation) {
	fmt.Fprintf(w, "Original:  %d tokens (%d chars)\n", c.Original.Tokens, c.Original.Size)
	fmt.Fprintf(w, "Converted: %d tokens (%d chars)\n", c.Converted.Tokens, c.Converted.Size)
	fmt.Fprintf(w, "Saved:     %d tokens (%d%%), $%.4f\n", c.Savings.Tokens, c.Savings.Percentage, c.Savings.Cost)
}
