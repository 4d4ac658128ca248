package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/config"
)

const loginTimeout = 15 * time.Second

// RunInteractiveLogin prompts for the server and a token, checks the token
// against the server, and persists config.
func RunInteractiveLogin(ctx context.Context, in io.Reader, out io.Writer, serverURL string) error {
	reader := bufio.NewReader(in)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	if serverURL == "" {
		def := cmpOr(cfg.ServerURL, api.DefaultBaseURL)
		fmt.Fprintf(out, "server [%s]: ", def)
		line, _ := reader.ReadString('\n')
		serverURL = cmpOr(strings.TrimSpace(line), def)
	}

	fmt.Fprint(out, "token: ")
	token, _ := reader.ReadString('\n')
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	client := api.NewDefaultClient(serverURL, token, rateLimit(cfg))
	if _, err := client.GetSettings(ctx); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	profile, err := client.GetUserProfile(ctx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cfg.ServerURL = serverURL
	cfg.Token = token
	cfg.Username = profile.Username
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(out, "logged in as %s\n", cmpOr(profile.Username, profile.Name))
	fmt.Fprintf(out, "config saved to %s\n", config.Path())
	return nil
}

// LoginCmd returns the `kgeditor login` command.
func LoginCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a knowledge graph editor server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunInteractiveLogin(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), server)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "server URL (prompted when empty)")
	return cmd
}

// LogoutCmd returns the `kgeditor logout` command.
func LogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("not logged in: %w", err)
			}
			cfg.Token = ""
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func cmpOr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
