package main

import "github.com/neo/interview_agent/cmd"

func main() {
	cmd.Execute()
}
