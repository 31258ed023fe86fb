/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/aussieverify/aussieverify/internal/portal/cli"
)

func init() {
	rootCmd.AddCommand(cli.New())
}
