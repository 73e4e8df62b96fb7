package main

import "github/chapool/vault-oracle/cmd"

func main() {
	cmd.Execute()
}
