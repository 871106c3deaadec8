package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newAPICmd(c *cli) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Call the invoicing API with the session's token",
	}

	var requireAuth bool
	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path relative to the API base url and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.app.APIClient(cmd.Context(), requireAuth)
			if err != nil {
				return err
			}

			var body json.RawMessage
			if err := client.Do(cmd.Context(), http.MethodGet, args[0], nil, &body); err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				return fmt.Errorf("formatting response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	getCmd.Flags().BoolVar(&requireAuth, "require-auth", false, "fail instead of calling the API anonymously when signed out")

	apiCmd.AddCommand(getCmd)
	return apiCmd
}
