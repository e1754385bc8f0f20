package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fingerid/internal/contentid"
	"fingerid/internal/enrollment"
	"fingerid/internal/identity"
	"fingerid/internal/store"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	var lookup bool

	cmd := &cobra.Command{
		Use:         "digest <file>...",
		Short:       "Print content digests of image files",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			digests := make([]string, 0, len(args))
			out := cmd.OutOrStdout()
			for _, path := range args {
				digest, err := contentid.File(path)
				if err != nil {
					return err
				}
				digests = append(digests, digest)
				fmt.Fprintf(out, "%s  %s\n", digest, path)
			}
			if !lookup {
				return nil
			}
			if len(digests) > enrollment.MaxLookupDigests {
				return fmt.Errorf("at most %d files can be looked up at once", enrollment.MaxLookupDigests)
			}
			return ctx.withIdentities(func(st *store.Store, _ *identity.Service) error {
				owner, found, err := enrollment.NewIndex(st).Lookup(cmd.Context(), digests)
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintln(out, "No enrolled account holds these images")
					return nil
				}
				fmt.Fprintf(out, "Enrolled to account %d\n", owner)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&lookup, "lookup", false, "Report which account has any of the images enrolled")
	return cmd
}
