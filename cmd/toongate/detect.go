package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/toongate/pkg/detect"
	"github.com/pario-ai/toongate/pkg/middleware"
)

func newDetectCmd(configPath *string) *cobra.Command {
	var (
		userAgent string
		headers   []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Classify a client from its user agent and headers",
		Example: "  toongate detect --user-agent 'openai-python/1.40'\n" +
			"  toongate detect -H 'X-Accept-TOON: true' --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			hdrs := make(map[string]string, len(headers))
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q (use 'Name: value')", h)
				}
				hdrs[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}

			res := detect.Detect(detect.Request{
				Headers:   hdrs,
				UserAgent: userAgent,
				Detectors: middleware.Detectors(cfg.Detection),
			}, detect.Options{
				ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
				Clock:               time.Now,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "Client:     %s\n", res.Type)
			fmt.Fprintf(out, "Confidence: %.2f\n", res.Confidence)
			fmt.Fprintf(out, "Scores:     LLM=%.2f regular=%.2f\n", res.Scores.LLM, res.Scores.Regular)
			if len(res.MatchedPatterns) > 0 {
				fmt.Fprintf(out, "Matched:    %s\n", strings.Join(res.MatchedPatterns, ", "))
			}
			convertible := cfg.Conversion.AutoConvert && detect.IsConfidenceHigh(res, cfg.Detection.ResponseConfidenceThreshold)
			fmt.Fprintf(out, "Converts:   %t\n", convertible)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userAgent, "user-agent", "A", "", "User-Agent header value")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the detection result as JSON")
	return cmd
}
