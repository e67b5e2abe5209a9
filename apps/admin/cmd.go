package main

import (
	"context"
	"fmt"
	"io"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errNoPassword = errors.New("no password given")
)

type commandLine struct {
	db      core.DocumentStore
	users   *user.Service
	courses *course.Service
	out     io.Writer
}

func (cli *commandLine) readPassword(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Code-X administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.AddCommand(cli.addUserCmd(), cli.resetPasswordCmd(), cli.migrateCmd(), cli.seedCmd())
	return root
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		name, uname, email string
		roles              []string
		isAdmin            bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the roles and password of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" && email == "" {
				return errors.New("a username or an email is required")
			}
			pwd, err := cli.readPassword(cmd)
			if err != nil {
				return err
			}
			if isAdmin {
				roles = user.AllRoles
			}
			usr, err := cli.addUser(cmd.Context(), name, uname, email, pwd, roles)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user %s saved (id: %s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "the user's full name; defaults to the username")
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "the user's email")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant; repeatable")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every role")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.readPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run goose migrations on the postgres store",
		Long: "Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, fix.\n" +
			"Only the postgres store uses migrations.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args)
		},
	}
}

func (cli *commandLine) seedCmd() *cobra.Command {
	var teacher string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a published demo course taught by the given user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := cli.seed(cmd.Context(), teacher)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "course %q created (id: %s)\n", c.Title, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&teacher, "teacher", "t", "", "username or email of the teacher")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
