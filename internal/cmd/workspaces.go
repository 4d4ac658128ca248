package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// WorkspacesCmd returns the `kgeditor workspaces` command.
func WorkspacesCmd() *cobra.Command {
	var use string
	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List your workspaces or pick the default one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel, cfg, client, err := session(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			profile, err := client.GetUserProfile(ctx)
			if err != nil {
				return fmt.Errorf("list workspaces: %w", err)
			}
			out := cmd.OutOrStdout()

			if use != "" {
				for _, w := range profile.Workspaces {
					if w.ID == use {
						cfg.Workspace = w.ID
						if err := cfg.Save(); err != nil {
							return fmt.Errorf("save config: %w", err)
						}
						fmt.Fprintf(out, "default workspace: %s\n", w.DisplayName())
						return nil
					}
				}
				return fmt.Errorf("you are not a member of workspace %q", use)
			}

			if len(profile.Workspaces) == 0 {
				fmt.Fprintln(out, "no workspaces found")
				return nil
			}
			for _, w := range profile.Workspaces {
				marker := " "
				if w.ID == cfg.Workspace {
					marker = "*"
				}
				perms := ""
				if w.Permissions.CanCreate {
					perms = "  (can create)"
				}
				fmt.Fprintf(out, "%s %s  %s%s\n", marker, w.ID, w.DisplayName(), perms)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&use, "use", "", "make this workspace the default")
	return cmd
}
