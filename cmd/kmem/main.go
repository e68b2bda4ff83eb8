//go:build darwin && cgo

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kmem/hexdump"
	"kmem/kern"
	"kmem/machkern"
)

var archFlag string

func newKernel() (*kern.Kernel, error) {
	var cfg kern.Config
	switch archFlag {
	case "arm64":
		cfg = kern.Arm64Config()
	case "arm":
		cfg = kern.ArmConfig()
	default:
		return nil, fmt.Errorf("unknown architecture %q (want arm or arm64)", archFlag)
	}
	return kern.New(machkern.New(), cfg), nil
}

func parseAddress(s string) (kern.Address, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return kern.Address(v), nil
}

// parseAOB turns a pattern string like "de,ad,??,ef" into a pattern and
// mask; "??" or "?" bytes are wildcards.
func parseAOB(s string) (kern.AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return kern.AOB{}, fmt.Errorf("empty pattern")
	}

	pattern := make([]byte, 0, len(parts))
	mask := make([]byte, 0, len(parts))
	for _, part := range parts {
		if part == "??" || part == "?" {
			pattern = append(pattern, 0)
			mask = append(mask, 0)
			continue
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return kern.AOB{}, fmt.Errorf("invalid hex byte %q", part)
		}
		pattern = append(pattern, byte(v))
		mask = append(mask, 0xFF)
	}
	return kern.NewAOB(pattern, mask)
}

var rootCmd = &cobra.Command{
	Use:          "kmem",
	Short:        "Read, write and search the running kernel's address space",
	SilenceUsage: true,
}

var baseCmd = &cobra.Command{
	Use:   "base",
	Short: "Locate and print the kernel image load base",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		base, err := k.Base()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), base)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <address> <length>",
	Short: "Hexdump a range of kernel memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		length, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid length %q: %w", args[1], err)
		}

		data, err := k.ReadBytes(addr, kern.Size(length))
		if err != nil {
			return err
		}
		if uint64(len(data)) < length {
			fmt.Fprintf(cmd.ErrOrStderr(), "short read: %d of %d bytes\n", len(data), length)
		}
		fmt.Fprint(cmd.OutOrStdout(), hexdump.Dump(data, uint64(addr)))
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <address> <hexbytes>",
	Short: "Write bytes into kernel memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(strings.NewReplacer(",", "", " ", "").Replace(args[1]))
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}

		n, err := k.Write(addr, data)
		if err != nil {
			return err
		}
		if n < len(data) {
			return fmt.Errorf("short write: %d of %d bytes", n, len(data))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at %s\n", n, addr)
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find <start> <end> <pattern>",
	Short: "Search a kernel range for a byte pattern ('??' bytes are wildcards)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		start, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		end, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		aob, err := parseAOB(args[2])
		if err != nil {
			return err
		}

		matches, err := k.Scan(start, end, aob)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("pattern not found in %s-%s", start, end)
		}
		for _, match := range matches {
			fmt.Fprintln(cmd.OutOrStdout(), match)

			// Show a little context around each hit.
			ctxStart := match - 16
			data, err := k.ReadBytes(ctxStart, kern.Size(len(aob.Pattern))+32)
			if err == nil && len(data) > 0 {
				fmt.Fprint(cmd.OutOrStdout(), hexdump.DumpHighlight(data, uint64(ctxStart), aob.Pattern))
			}
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <start> <end> <file>",
	Short: "Dump a kernel range to a file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		start, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		end, err := parseAddress(args[1])
		if err != nil {
			return err
		}

		n, err := k.DumpRange(args[2], start, end)
		if err != nil {
			return err
		}
		if kern.Size(n) < kern.Size(end-start) {
			fmt.Fprintf(cmd.ErrOrStderr(), "short read: dumped %d of %d bytes\n", n, uint64(end-start))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dumped %d bytes to %s\n", n, args[2])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&archFlag, "arch", "arm64", "Target architecture (arm or arm64)")
	rootCmd.AddCommand(baseCmd, readCmd, writeCmd, findCmd, dumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
