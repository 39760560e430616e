package main

import (
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/wasirt/wasi"
	"github.com/spf13/cobra"
)

func newCapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Show the capabilities guests would get",
		Args:  cobra.NoArgs,
		RunE:  runCaps,
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}

func runCaps(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rep := wasi.Capabilities(s.rt)
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(out, "networking:  %s\n", rep.Networking)
	fmt.Fprintf(out, "http:        %s\n", presence(rep.HTTP))
	fmt.Fprintf(out, "tty:         %s\n", presence(rep.TTY))
	fmt.Fprintf(out, "engine:      %s\n", presence(rep.Engine))
	fmt.Fprintf(out, "parallelism: %d\n", rep.Parallelism)
	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}
