// Command dnnconv runs, verifies and inspects convolution layers backed by
// the blocked-layout engine.
package main

import "github.com/born-ml/dnnconv/internal/cli"

func main() {
	cli.Execute()
}
