package main

import "github.com/rendaflow/ms-go-billing/cmd"

func main() {
	cmd.Execute()
}
