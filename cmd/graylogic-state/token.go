package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-statestore/internal/auth"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/logging"
)

// tokenOptions holds the flags of the token subcommand.
type tokenOptions struct {
	subject string
	role    string
	rooms   []string
	ttl     int
}

// newTokenCmd builds "graylogic-state token", which signs an access token
// with the configured JWT secret and prints it.
func newTokenCmd(configPath *string) *cobra.Command {
	opts := tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		Long: `The token command signs an access token with security.jwt.secret from
the configuration and prints it to stdout. Readers may query state and open
the change stream; operators may also write state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd.OutOrStdout(), *configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.subject, "subject", "s", "", "token subject (panel, controller, or operator name)")
	cmd.Flags().StringVarP(&opts.role, "role", "r", string(auth.RoleReader), "role: reader or operator")
	cmd.Flags().StringSliceVar(&opts.rooms, "rooms", nil, "room IDs the token is valid for; empty for all rooms")
	cmd.Flags().IntVar(&opts.ttl, "ttl", 0, "lifetime in minutes (default 15)")
	//nolint:errcheck // flag is defined above
	cmd.MarkFlagRequired("subject")

	return cmd
}

func runToken(out io.Writer, configPath string, opts tokenOptions) error {
	if strings.TrimSpace(opts.subject) == "" {
		return fmt.Errorf("--subject must not be empty")
	}

	// Keep stdout clean for the token itself.
	quiet := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, version)
	cfg, err := loadConfig(configPath, quiet)
	if err != nil {
		return err
	}
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not set; tokens are not required")
	}

	token, err := auth.GenerateAccessToken(opts.subject, auth.Role(opts.role), cleanRooms(opts.rooms), cfg.Security.JWT.Secret, opts.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	//nolint:errcheck // best-effort CLI output
	fmt.Fprintln(out, token)
	return nil
}

// cleanRooms trims room IDs and drops blanks.
func cleanRooms(in []string) []string {
	var rooms []string
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			rooms = append(rooms, r)
		}
	}
	return rooms
}
