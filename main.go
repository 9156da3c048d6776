// The main package for the postal-resolver executable.
package main

import "github.com/JakeFAU/postal-resolver/cmd"

func main() {
	cmd.Execute()
}
