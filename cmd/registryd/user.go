package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var userAdmin bool
var userPassword string

func init() {
	UserCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant this user admin (full catalog access)")
	UserCreateCmd.Flags().StringVar(&userPassword, "password", "", "password (prompted if omitted is not supported yet, so this is required)")
	UserCreateCmd.MarkFlagRequired("password")
}

// UserCreateCmd provisions a user account, matching create_user.
var UserCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "create a user account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openCatalog()
		defer store.Close()
		u, err := store.CreateUser(context.Background(), args[0], userPassword, userAdmin)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("created user %q (id=%s, admin=%v)\n", u.Email, u.ID, u.IsAdmin)
	},
}
