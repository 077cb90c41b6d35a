package main

import "crm-service/cmd/crmctl/cmd"

func main() {
	cmd.Execute()
}
