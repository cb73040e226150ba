package main

import (
	"bufio"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal users",
	}
	cmd.AddCommand(newUserCreateCmd(), newUserListCmd(), newUserDeleteCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Register a user through a registration role",
		Long: `Register a user. The role's master password comes from the
configuration; the new password is prompted for.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd, cfg)
			defer logger.Shutdown()

			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			auth, err := newAuthServices(cfg, st, nil, logger)
			if err != nil {
				return err
			}

			master, ok := model.MasterPasswords(cfg.Security.MasterPasswords).Lookup(role)
			if !ok {
				return fmt.Errorf("role %q has no master password configured", role)
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			password, err := readSecret(cmd, reader, "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readSecret(cmd, reader, "Repeat password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			err = auth.credentials.CreateUser(cmd.Context(), inbound.CreateUserRequest{
				MasterUsername: role,
				MasterPassword: master,
				Username:       args[0],
				Password:       password,
			})
			if err != nil {
				return err
			}

			cmd.Printf("User %s created with role %s\n", args[0], role)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "normal", "registration role")
	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd, cfg)
			defer logger.Shutdown()

			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			records, err := st.users.List(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(records))
			for name := range records {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tADMIN\tCREATED")
			for _, name := range names {
				view := records[name].ToView(name)
				fmt.Fprintf(w, "%s\t%t\t%s\n", view.Username, view.Admin, view.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd, cfg)
			defer logger.Shutdown()

			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("User %s deleted\n", args[0])
			return nil
		},
	}
}
