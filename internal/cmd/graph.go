package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gravitrone/kgeditor/internal/graph"
)

// GraphCmd returns the `kgeditor graph <id>` command.
func GraphCmd() *cobra.Command {
	var expand bool
	cmd := &cobra.Command{
		Use:   "graph <id>",
		Short: "Print the neighbor graph of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, _, client, err := session(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			explorer := graph.NewExplorer(client, nil)
			if err := explorer.Fetch(ctx, args[0]); err != nil {
				return err
			}
			if expand {
				for _, g := range explorer.GroupsList() {
					explorer.SetGrouping(g.ID, false)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "types:")
			for _, g := range explorer.GroupsList() {
				state := ""
				if g.Grouped {
					state = " (grouped)"
				}
				fmt.Fprintf(out, "  %s: %d%s\n", g.Name, len(g.NodeIDs), state)
			}

			data := explorer.Data()
			names := make(map[string]string, len(data.Vertices))
			for _, v := range data.Vertices {
				names[v.ID] = v.Name
				if v.IsGroup {
					names[v.ID] = fmt.Sprintf("[%s x%d]", v.Name, v.Size)
				}
			}
			fmt.Fprintln(out, "links:")
			for _, l := range data.Links {
				fmt.Fprintf(out, "  %s -> %s\n", cmpOr(names[l.Source.ID], l.Source.ID), cmpOr(names[l.Target.ID], l.Target.ID))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "list every node instead of collapsing shared types")
	return cmd
}
