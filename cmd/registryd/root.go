package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped by the release build; left as a plain default here
// since this repository does not carry a separate version package.
var version = "dev"

var showVersion bool
var configPath string

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the registry YAML configuration file")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(DatabaseCmd)
	RootCmd.AddCommand(RepositoryCmd)
	RootCmd.AddCommand(UserCmd)

	DatabaseCmd.AddCommand(MigrateCmd)
	RepositoryCmd.AddCommand(RepositoryCreateCmd)
	RepositoryCmd.AddCommand(RepositoryListCmd)
	UserCmd.AddCommand(UserCreateCmd)
}

// RootCmd is the main command for the registryd binary.
var RootCmd = &cobra.Command{
	Use:   "registryd",
	Short: "registryd serves and administers an OCI Distribution registry",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version)
			return
		}
		cmd.Usage()
	},
}

// DatabaseCmd is the root of the `database` command.
var DatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "manages the registry's SQLite catalog database",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// RepositoryCmd is the root of the `repository` command.
var RepositoryCmd = &cobra.Command{
	Use:   "repository",
	Short: "manages repositories",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// UserCmd is the root of the `user` command.
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "manages user accounts",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}
