package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caffeineduck/wasirt/container"
	"github.com/spf13/cobra"
)

func newContainerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Work with wasirt packages",
	}

	unpack := &cobra.Command{
		Use:   "unpack PACKAGE",
		Short: "Extract contents of a package to a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnpack,
	}
	unpack.Flags().StringP("out-dir", "o", "", "The output directory")
	unpack.Flags().Bool("overwrite", false, "Overwrite existing directories/files")
	unpack.MarkFlagRequired("out-dir")

	inspect := &cobra.Command{
		Use:   "inspect PACKAGE",
		Short: "Print the manifest of a package",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	cmd.AddCommand(unpack, inspect)
	return cmd
}

func runUnpack(cmd *cobra.Command, args []string) error {
	pkgPath := args[0]
	outDir, _ := cmd.Flags().GetString("out-dir")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	stderr := cmd.ErrOrStderr()

	fmt.Fprintln(stderr, "Unpacking...")

	pkg, err := container.Open(pkgPath)
	if err != nil {
		return fmt.Errorf("could not open package at '%s': %w", pkgPath, err)
	}
	defer pkg.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory '%s': %w", outDir, err)
	}

	if err := pkg.Unpack(outDir, overwrite); err != nil {
		return fmt.Errorf("could not extract package: %w", err)
	}

	fmt.Fprintf(stderr, "Extracted package contents to '%s'\n", outDir)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	pkg, err := container.Open(args[0])
	if err != nil {
		return fmt.Errorf("could not open package at '%s': %w", args[0], err)
	}
	defer pkg.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pkg.Manifest())
}
