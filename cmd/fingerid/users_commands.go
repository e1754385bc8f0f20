package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fingerid/internal/identity"
	"fingerid/internal/store"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Administer accounts in the local database",
	}
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersCreateCommand(ctx))
	usersCmd.AddCommand(newUsersReviewCommand(ctx, "approve", identity.ActionApprove))
	usersCmd.AddCommand(newUsersReviewCommand(ctx, "reject", identity.ActionReject))
	usersCmd.AddCommand(newUsersStatusCommand(ctx, "disable", store.StatusDisabled))
	usersCmd.AddCommand(newUsersStatusCommand(ctx, "enable", store.StatusApproved))
	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var role, status, keyword, field string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentities(func(st *store.Store, ids *identity.Service) error {
				users, err := ids.List(cmd.Context(), store.IdentityFilter{
					Role:    store.Role(strings.ToUpper(role)),
					Status:  store.Status(strings.ToUpper(status)),
					Keyword: keyword,
					Field:   field,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No accounts found")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{
						strconv.FormatInt(u.ID, 10),
						u.Username,
						u.RealName,
						label(string(u.Role)),
						label(string(u.Status)),
						u.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Username", "Name", "Role", "Status", "Created"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Filter by role (ordinary, approver, superuser)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, rejected, disabled)")
	cmd.Flags().StringVar(&keyword, "keyword", "", "Search keyword")
	cmd.Flags().StringVar(&field, "field", store.SearchAll, "Search field (all, id, username, real_name, email, phone)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show")
	return cmd
}

func newUsersCreateCommand(ctx *commandContext) *cobra.Command {
	var in identity.CreateInput
	var role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an approved account, typically the first superuser",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = store.Role(strings.ToUpper(role))
			return ctx.withIdentities(func(st *store.Store, ids *identity.Service) error {
				created, err := ids.Create(cmd.Context(), 0, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %d)\n", label(string(created.Role)), created.Username, created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "Login name")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", string(store.RoleSuperuser), "Role (ordinary, approver, superuser)")
	cmd.Flags().StringVar(&in.RealName, "real-name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersReviewCommand(ctx *commandContext, use, action string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: label(use) + " a pending ordinary account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withIdentities(func(st *store.Store, ids *identity.Service) error {
				updated, err := ids.Review(cmd.Context(), 0, id, action, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %q is now %s\n", updated.Username, label(string(updated.Status)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func newUsersStatusCommand(ctx *commandContext, use string, status store.Status) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: label(use) + " an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withIdentities(func(st *store.Store, ids *identity.Service) error {
				target := status
				updated, err := ids.Update(cmd.Context(), 0, id, identity.UpdateInput{Status: &target, Reason: &reason})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %q is now %s\n", updated.Username, label(string(updated.Status)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason stored on the account")
	return cmd
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", value)
	}
	return id, nil
}
