package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/config"
)

var repoPublic bool

func init() {
	RepositoryCreateCmd.Flags().BoolVar(&repoPublic, "public", false, "allow anonymous pull of this repository")
}

// RepositoryCreateCmd provisions a repository ahead of its first push,
// matching create_new_repo's public/private flag.
var RepositoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "create a repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openCatalog()
		defer store.Close()
		repo, err := store.CreateRepository(context.Background(), args[0], repoPublic)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("created repository %q (id=%d, public=%v)\n", repo.Name, repo.ID, repo.IsPublic)
	},
}

// RepositoryListCmd lists every repository and its aggregate counts,
// matching list_repositories.
var RepositoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "list repositories",
	Run: func(cmd *cobra.Command, args []string) {
		store := openCatalog()
		defer store.Close()
		rows, err := store.ListRepositories(context.Background(), false)
		if err != nil {
			fatal(err)
		}
		for _, r := range rows {
			fmt.Printf("%s\tpublic=%v\tblobs=%d\tmanifests=%d\ttags=%d\n",
				r.Name, r.IsPublic, r.BlobCount, r.ManifestCount, r.TagCount)
		}
	},
}

func openCatalog() *catalog.Store {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	store, err := catalog.Open(context.Background(), cfg.Database.Path)
	if err != nil {
		fatal(fmt.Errorf("registryd: opening catalog: %w", err))
	}
	return store
}
