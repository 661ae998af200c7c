// Package cmd implements the mailagent command line interface.
package cmd
