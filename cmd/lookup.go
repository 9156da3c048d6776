package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/app"
)

type lookupOutput struct {
	Commune    string `json:"commune"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	PostalCode string `json:"postalCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <commune> <street> <number>",
		Short: "Asks the portal for one address without touching the store",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			a := app.BuildScraper(rt.cfg, rt.logger)
			defer func() {
				if cerr := a.Close(); cerr != nil {
					rt.logger.Warn("close failed", zap.Error(cerr))
				}
			}()

			outcome := a.Lookup(cmd.Context(), args[0], args[1], args[2])
			out := lookupOutput{Commune: args[0], Street: args[1], Number: args[2]}
			lookupErr := outcome.Err
			if outcome.OK() {
				out.PostalCode = outcome.PostalCode
			} else {
				if lookupErr == nil {
					lookupErr = errors.New("empty postal code")
				}
				out.Error = lookupErr.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			if lookupErr != nil {
				return fmt.Errorf("lookup failed: %w", lookupErr)
			}
			return nil
		},
	}
}
