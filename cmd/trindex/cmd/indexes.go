package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "List the non-empty indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); err == nil {
					err = cerr
				}
			}()

			names, err := s.backend.Indexes()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d index(es) in %s (%s backend)\n", len(names), s.cfg.DataDir, s.cfg.Backend)
			return nil
		},
	}
}
