package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"bpdb/internal/cli"
	"bpdb/internal/store"
)

func cleanInput(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func main() {
	path := "index.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	idx, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	config := &cli.Config{Index: idx}
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Printf("bpdb [%s]> ", path)
		}
		if !scanner.Scan() {
			break
		}
		line := cleanInput(scanner.Text())
		if len(line) == 0 {
			continue
		}
		command, ok := cli.Registry[line[0]]
		if !ok {
			fmt.Println("Unknown command")
			continue
		}
		if err := command.Callback(config, line[1:], os.Stdout); err != nil {
			fmt.Printf("Error with command %s: %s\n", command.Name, err)
		}
	}

	if err := idx.Close(); err != nil {
		log.Fatal(err)
	}
}
