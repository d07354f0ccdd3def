// The main package for the augmentweb executable.
package main

import (
	"github.com/JakeFAU/augmentweb/cmd"
)

func main() {
	cmd.Execute()
}
