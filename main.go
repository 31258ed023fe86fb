/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/aussieverify/aussieverify/cmd"

func main() {
	cmd.Execute()
}
