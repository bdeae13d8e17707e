package main

import "github.com/ramiqadoumi/go-task-board/services/board-api/cli"

func main() {
	cli.Execute()
}
