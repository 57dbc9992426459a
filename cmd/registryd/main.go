// Command registryd runs the registry core: an OCI Distribution
// Specification v2 server plus the administrative subcommands
// (database migration, repository and user provisioning) grounded on
// the teacher's registry/root.go cobra tree.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(err error) {
	logrus.WithError(err).Fatal("registryd: fatal error")
}
