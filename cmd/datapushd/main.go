// Copyright © 2018 One Concern

package main

import "github.com/oneconcern/datapush/cmd/datapushd/cmd"

func main() {
	cmd.Execute()
}
