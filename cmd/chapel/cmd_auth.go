package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/resources"
	"github.com/iliyamo/chapel-client/internal/session"
	"github.com/iliyamo/chapel-client/internal/utils"
)

var (
	loginEmail    string
	loginPassword string

	reg         model.RegisterRequest
	regBirthday string

	profileUpd model.ProfileUpdate
	profileDOB string

	pwCurrent string
	pwNew     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	Long: `Signs in with email and password.  The password may also come from
CHAPEL_PASSWORD so it does not end up in shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pw := loginPassword
		if pw == "" {
			pw = os.Getenv("CHAPEL_PASSWORD")
		}
		user, err := a.auth.Login(ctx, loginEmail, pw)
		if err != nil {
			return err
		}
		a.sessionEvent(ctx, a.state.Snapshot())
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", user.FullName())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		err := a.auth.Logout(ctx)
		a.sessionEvent(ctx, a.state.Snapshot())
		if err != nil {
			// the local session is gone either way
			a.log.Sugar().Debugw("server logout failed", "error", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if regBirthday != "" {
			if _, err := time.Parse(resources.DayLayout, regBirthday); err != nil {
				return fmt.Errorf("--birthday must be YYYY-MM-DD")
			}
			reg.DateOfBirth = regBirthday
		}
		msg, err := a.auth.Register(cmd.Context(), reg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Check the stored session against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := a.restore(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if snap.Status != session.Authenticated || snap.User == nil {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}
		u := snap.User
		fmt.Fprintf(out, "%s <%s>\n", u.FullName(), u.Email)
		if u.Department != "" || u.Position != "" {
			fmt.Fprintf(out, "%s\n", strings.Trim(u.Department+" / "+u.Position, " /"))
		}
		if tok, ok := a.holder.Token(); ok {
			if claims, err := utils.InspectToken(tok); err == nil && !claims.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "session expires %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
			}
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		if profileDOB != "" {
			dob, err := time.Parse(resources.DayLayout, profileDOB)
			if err != nil {
				return fmt.Errorf("--birthday must be YYYY-MM-DD")
			}
			profileUpd.DateOfBirth = &dob
		}
		p := resources.NewProfile(a.deps())
		defer p.Dispose()
		u, err := p.Update(ctx, profileUpd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated: %s\n", u.FullName())
		return nil
	},
}

var avatarCmd = &cobra.Command{
	Use:   "avatar <image-file>",
	Short: "Upload a profile picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		p := resources.NewProfile(a.deps())
		defer p.Dispose()
		u, err := p.UploadImage(ctx, args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile image set: %s\n", u.ProfileImg)
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		p := resources.NewProfile(a.deps())
		defer p.Dispose()
		msg, err := p.ChangePassword(ctx, model.PasswordChange{CurrentPassword: pwCurrent, NewPassword: pwNew})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")

	f := registerCmd.Flags()
	f.StringVar(&reg.FirstName, "first-name", "", "given name")
	f.StringVar(&reg.LastName, "last-name", "", "family name")
	f.StringVar(&reg.Email, "email", "", "login email")
	f.StringVar(&reg.Password, "password", "", "password")
	f.StringVar(&reg.ConfirmPassword, "confirm-password", "", "password again")
	f.StringVar(&reg.Department, "department", "", "department name")
	f.StringVar(&reg.Position, "position", "", "role within the church")
	f.StringVar(&regBirthday, "birthday", "", "date of birth, YYYY-MM-DD")

	f = profileCmd.Flags()
	f.StringVar(&profileUpd.FirstName, "first-name", "", "given name")
	f.StringVar(&profileUpd.LastName, "last-name", "", "family name")
	f.StringVar(&profileUpd.Department, "department", "", "department name")
	f.StringVar(&profileUpd.Position, "position", "", "role within the church")
	f.StringVar(&profileDOB, "birthday", "", "date of birth, YYYY-MM-DD")

	passwdCmd.Flags().StringVar(&pwCurrent, "current", "", "current password")
	passwdCmd.Flags().StringVar(&pwNew, "new", "", "new password")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd, profileCmd, avatarCmd, passwdCmd)
}
