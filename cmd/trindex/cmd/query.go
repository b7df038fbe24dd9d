package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

type queryOptions struct {
	subject   string
	predicate string
	object    string
	limit     int
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	q := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up triples by subject, predicate and/or object",
		Long: `Look up triples by any combination of subject, predicate and object.
Terms use N-Triples syntax, for example:

  trindex query --subject '<http://example.org/alice>'
  trindex query --predicate '<http://xmlns.com/foaf/0.1/name>' --object '"Alice"'

Matching triples are printed as N-Triples.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, q)
		},
	}

	cmd.Flags().StringVarP(&q.subject, "subject", "s", "", "Subject term")
	cmd.Flags().StringVarP(&q.predicate, "predicate", "p", "", "Predicate term")
	cmd.Flags().StringVarP(&q.object, "object", "o", "", "Object term")
	cmd.Flags().IntVar(&q.limit, "limit", 0, "Maximum number of triples to print (0 = all)")

	return cmd
}

func parseOptionalTerm(name, value string) (rdf.Term, error) {
	if value == "" {
		return nil, nil
	}
	term, err := rdf.ParseTerm(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return term, nil
}

func runQuery(cmd *cobra.Command, opts *rootOptions, q *queryOptions) (err error) {
	s, err := parseOptionalTerm("subject", q.subject)
	if err != nil {
		return err
	}
	p, err := parseOptionalTerm("predicate", q.predicate)
	if err != nil {
		return err
	}
	o, err := parseOptionalTerm("object", q.object)
	if err != nil {
		return err
	}
	if s == nil && p == nil && o == nil {
		return errors.New("at least one of --subject, --predicate or --object is required")
	}

	sess, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); err == nil {
			err = cerr
		}
	}()

	it, err := sess.manager.TriplesMatching(s, p, o)
	if err != nil {
		return err
	}
	defer it.Close()

	enc := rdf.NewEncoder(cmd.OutOrStdout())
	count := 0
	for it.Next() {
		t, err := it.Triple()
		if err != nil {
			return err
		}
		if err := enc.Encode(t); err != nil {
			return err
		}
		count++
		if q.limit > 0 && count >= q.limit {
			break
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	if err := it.Err(); err != nil {
		return err
	}

	sess.logger.Debug("query finished", "results", count)
	return it.Close()
}
