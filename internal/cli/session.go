package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var errNotSignedIn = errors.New("not signed in; run tellerctl login")

func newLoginCmd(rt *runtime) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if email == "" {
				if email, err = prompt(in, out, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(in, out, "Password: "); err != nil {
					return err
				}
			}

			result := rt.controller.Login(cmd.Context(), email, password)
			if !result.Success {
				return errors.New(result.Error)
			}
			user := rt.controller.State().User
			fmt.Fprintf(out, "Signed in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and forget the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt.controller.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newRefreshCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the token pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !rt.controller.State().IsAuthenticated {
				return errNotSignedIn
			}
			if !rt.controller.RefreshToken(cmd.Context()) {
				return errors.New("token refresh failed; you have been signed out")
			}
			printSession(cmd.Context(), cmd.OutOrStdout(), rt)
			return nil
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !rt.controller.State().IsAuthenticated {
				return errNotSignedIn
			}
			if remote {
				if _, err := rt.controller.UserInfo(cmd.Context()); err != nil {
					return fmt.Errorf("userinfo: %w", err)
				}
			}
			printSession(cmd.Context(), cmd.OutOrStdout(), rt)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Check the session with the server")
	return cmd
}

func printSession(ctx context.Context, out io.Writer, rt *runtime) {
	user := rt.controller.State().User
	fmt.Fprintf(out, "User: %s <%s>\n", user.Name, user.Email)
	fmt.Fprintf(out, "  ID:      %s\n", user.ID)
	fmt.Fprintf(out, "  Role:    %s\n", user.Role)
	if len(user.Permissions) > 0 {
		fmt.Fprintf(out, "  Scopes:  %s\n", strings.Join(user.Permissions, " "))
	}
	if session, ok := rt.store.Load(ctx); ok {
		fmt.Fprintf(out, "  Expires: %s\n", time.UnixMilli(session.ExpiresAt).UTC().Format(time.RFC3339))
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.TrimSuffix(strings.ToLower(label), ": "))
	}
	return value, nil
}
