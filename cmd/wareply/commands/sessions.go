package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wareply/pkg/wareply/session"
)

// newSessionsCmd creates the `wareply sessions` command listing the
// session identities the supervisor would start.
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List discovered session identities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			names, err := session.DiscoverSessions(cfg.SessionsDir)
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Printf("no session directories under %s (expected prefix %q)\n",
					cfg.SessionsDir, session.SessionDirPrefix)
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}
