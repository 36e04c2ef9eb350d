package main

import "github.com/praetorian-inc/tenantscan/cmd"

func main() {
	cmd.Execute()
}
