package cli

import (
	"bufio"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"teller/internal/session/idle"
)

func newWatchCmd(rt *runtime) *cobra.Command {
	var timeout, warning time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay signed in while active; sign out after a period of inactivity",
		Long: "watch keeps the session open while you press enter. After --timeout without input " +
			"the session is revoked and removed, as the dashboard does for idle browser tabs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !rt.controller.State().IsAuthenticated {
				return errNotSignedIn
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			warned := make(chan struct{}, 1)
			expired := make(chan struct{})
			monitor, err := idle.New(idle.Config{
				Timeout: timeout,
				Warning: warning,
				OnWarning: func() {
					select {
					case warned <- struct{}{}:
					default:
					}
				},
				OnTimeout: func() { close(expired) },
			}, idle.WithLogger(rt.logger))
			if err != nil {
				return err
			}
			defer monitor.Close()

			go func() {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					monitor.Activity(idle.EventKeyPress)
				}
			}()

			monitor.Start()
			fmt.Fprintf(out, "Watching for activity; idle timeout %s\n", timeout)

			for {
				select {
				case <-warned:
					fmt.Fprintf(out, "Session expires in %s. Press enter to stay signed in.\n", warning)
				case <-expired:
					rt.controller.Logout(ctx)
					fmt.Fprintln(out, "Signed out after inactivity")
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", idle.DefaultTimeout, "Inactivity before signing out")
	cmd.Flags().DurationVar(&warning, "warning", idle.DefaultWarning, "Warn this long before signing out")
	return cmd
}
