package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smarter-english/elt-trading-game/internal/auth"
)

var pendingOnly bool

var teachersCmd = &cobra.Command{
	Use:   "teachers",
	Short: "Manage teacher accounts",
	Long: `Review teacher applications and manage roles.

Available subcommands:
  list    - List accounts, optionally only pending applications
  approve - Let an applicant sign in and run games
  reject  - Refuse an application
  promote - Make a teacher an admin`,
}

var teachersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teacher accounts",
	Args:  cobra.NoArgs,
	RunE:  runTeachersList,
}

var teachersApproveCmd = &cobra.Command{
	Use:   "approve <email>",
	Short: "Approve a teacher application",
	Args:  cobra.ExactArgs(1),
	RunE:  roleCommand((*auth.Service).Approve, "approved"),
}

var teachersRejectCmd = &cobra.Command{
	Use:   "reject <email>",
	Short: "Reject a teacher application",
	Args:  cobra.ExactArgs(1),
	RunE:  roleCommand((*auth.Service).Reject, "rejected"),
}

var teachersPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Promote a teacher to admin",
	Args:  cobra.ExactArgs(1),
	RunE:  roleCommand((*auth.Service).Promote, "promoted to admin"),
}

func init() {
	teachersListCmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only show applications awaiting approval")

	teachersCmd.AddCommand(teachersListCmd, teachersApproveCmd, teachersRejectCmd, teachersPromoteCmd)
	rootCmd.AddCommand(teachersCmd)
}

func runTeachersList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	accounts, closeDB, err := openAccounts(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	var role auth.Role
	if pendingOnly {
		role = auth.RolePending
	}
	teachers, err := accounts.List(ctx, role)
	if err != nil {
		return err
	}

	return printTeachers(cmd.OutOrStdout(), teachers)
}

func printTeachers(w io.Writer, teachers []auth.Teacher) error {
	if len(teachers) == 0 {
		_, err := fmt.Fprintln(w, "No teachers found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tROLE\tAPPLIED")
	for _, t := range teachers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Email, t.DisplayName(), t.Role, t.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

type roleChange func(s *auth.Service, ctx context.Context, email string) (auth.Teacher, error)

func roleCommand(change roleChange, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		accounts, closeDB, err := openAccounts(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		teacher, err := change(accounts, ctx, args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (role %s)\n", teacher.Email, verb, teacher.Role)
		return nil
	}
}
