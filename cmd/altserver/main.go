package main

import "github.com/appuploader/altserver/cmd/altserver/cmd"

func main() {
	cmd.Execute()
}
