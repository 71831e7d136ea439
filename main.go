package main

import "github.com/Tiliavir/toggl-jira-sync/cmd"

func main() {
	cmd.Execute()
}
