package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pario-ai/toongate/pkg/cache/memory"
	"github.com/pario-ai/toongate/pkg/normalize"
)

func newKeyCmd() *cobra.Command {
	var (
		url       string
		method    string
		userAgent string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "key [file]",
		Short: "Print the conversion cache key for a JSON payload",
		Long: "Prints the cache key the proxy would use for a response payload served at --url.\n" +
			"With --raw the input is hashed as text, the way decoded request bodies are keyed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			c := memory.New(memory.Config{})
			defer c.Destroy()
			var keyErr error
			c.Subscribe(func(e memory.Event) {
				if e.Kind == memory.EventError {
					keyErr = e.Err
				}
			})

			var (
				key string
				ok  bool
			)
			if raw {
				key, ok = c.HashData(string(input))
			} else {
				payload, err := normalize.DecodeJSON(input)
				if err != nil {
					return fmt.Errorf("parse json: %w", err)
				}
				key, ok = c.GenerateKey(memory.RequestMeta{URL: url, Method: method, UserAgent: userAgent}, payload)
			}
			if !ok {
				if keyErr == nil {
					keyErr = errors.New("unknown error")
				}
				return fmt.Errorf("generate key: %w", keyErr)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "/", "request URI the payload was served at")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().StringVarP(&userAgent, "user-agent", "A", "", "User-Agent header value")
	cmd.Flags().BoolVar(&raw, "raw", false, "hash the input as text instead of keying a JSON payload")
	return cmd
}
