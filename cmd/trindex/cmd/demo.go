package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/pkg/index"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

func newDemoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Index sample data and run a few lookups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}
}

func runDemo(cmd *cobra.Command, opts *rootOptions) (err error) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== trindex demo ===")
	fmt.Fprintln(out)

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	fmt.Fprintf(out, "Opened %s index at: %s\n\n", s.cfg.Backend, s.cfg.DataDir)

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")

	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")

	triples := []rdf.Triple{
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")),
		rdf.NewTriple(alice, age, rdf.NewIntegerLiteral(30)),
		rdf.NewTriple(alice, knows, bob),

		rdf.NewTriple(bob, name, rdf.NewLiteral("Bob")),
		rdf.NewTriple(bob, age, rdf.NewIntegerLiteral(25)),
		rdf.NewTriple(bob, knows, carol),

		rdf.NewTriple(carol, name, rdf.NewLiteral("Carol")),
		rdf.NewTriple(carol, age, rdf.NewIntegerLiteral(28)),
	}

	fmt.Fprintln(out, "Indexing sample data...")
	if err := s.manager.AddToIndex(triples...); err != nil {
		return err
	}
	for _, t := range triples {
		fmt.Fprintf(out, "  ✓ %s\n", t)
	}
	if err := s.manager.Drain(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== Lookups ===")

	lookups := []struct {
		title   string
		s, p, o rdf.Term
	}{
		{"Triples about alice:", alice, nil, nil},
		{"Who knows whom:", nil, knows, nil},
		{"Who knows carol:", nil, knows, carol},
	}
	for _, l := range lookups {
		if err := lookup(out, s.manager, l.title, l.s, l.p, l.o); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nRemoving alice's age...")
	if err := s.manager.RemoveFromIndex(triples[1]); err != nil {
		return err
	}
	if err := s.manager.Drain(cmd.Context()); err != nil {
		return err
	}
	if err := lookup(out, s.manager, "Triples about alice:", alice, nil, nil); err != nil {
		return err
	}

	stats := s.manager.Stats()
	fmt.Fprintf(out, "\nApplied %d action(s) in %d batch(es)\n", stats.Processed, stats.Batches)
	return nil
}

func lookup(w io.Writer, m *index.Manager, title string, s, p, o rdf.Term) error {
	it, err := m.TriplesMatching(s, p, o)
	if err != nil {
		return err
	}
	defer it.Close()

	fmt.Fprintf(w, "\n%s\n", title)
	count := 0
	for it.Next() {
		t, err := it.Triple()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", t)
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Fprintf(w, "  (%d triple(s))\n", count)
	return it.Close()
}
