//go:build !darwin || !cgo

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "kmem requires darwin and cgo: the kernel task port is a Mach capability")
	os.Exit(1)
}
