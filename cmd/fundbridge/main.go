// Command fundbridge runs the donation-matching ledger.
package main

import "github.com/fundbridge/fundbridge/internal/cli"

func main() {
	cli.Execute()
}
