package main

import (
	"context"
	"os"

	"github.com/tazhate/taskcal/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
