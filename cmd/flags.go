package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// intFlagOr returns the flag value when it was set explicitly, def otherwise.
func intFlagOr(cmd *cobra.Command, name string, def int) int {
	if cmd.Flags().Changed(name) {
		return mustGetInt(cmd, name)
	}
	return def
}

// stringFlagOr returns the flag value when it was set explicitly, def otherwise.
func stringFlagOr(cmd *cobra.Command, name, def string) string {
	if cmd.Flags().Changed(name) {
		return mustGetString(cmd, name)
	}
	return def
}
