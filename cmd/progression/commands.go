package main

import (
	"fmt"

	"github.com/spf13/cobra"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/court"
	"github.com/terraskye/progression/eventstore/memory"
)

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the command names accepted by serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			router := es.NewRouter()
			court.Register(router, memory.NewMemoryStore())
			for _, name := range router.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
