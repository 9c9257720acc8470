// Command kvshell is an interactive shell over a kvslite store, in the
// shape of the teacher's cmd/repl but for plain key/value commands
// instead of SQL.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kvslite-go/kvslite"
	"github.com/kvslite-go/kvslite/internal/kvtypes"
)

func main() {
	fmt.Println("kvslite shell")
	fmt.Println("Type 'help' for commands, 'exit' to quit")
	fmt.Println()

	store, err := kvslite.Open(kvslite.Options{Dir: ".", Name: "kvshell"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runREPL(store)
}

func runREPL(store *kvslite.Store) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("kv> ")

		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "exit", "quit":
			fmt.Println("bye")
			return

		case "help":
			showHelp()

		case "get":
			handleGet(store, args)

		case "put", "set":
			handlePut(store, args)

		case "insert":
			handleInsert(store, args)

		case "delete", "del":
			handleDelete(store, args)

		case "stats":
			handleStats(store)

		case "checkpoint":
			handleCheckpoint(store)

		default:
			fmt.Printf("unknown command: %s (try 'help')\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
	}
}

func handleGet(store *kvslite.Store, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}
	value, err := store.Get(kvtypes.BytesKey(args[0]))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%s\n", value.Serialize())
}

func handlePut(store *kvslite.Store, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}
	key := kvtypes.BytesKey(args[0])
	value := kvtypes.BytesValue(args[1])
	if err := store.Put(key, value); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func handleInsert(store *kvslite.Store, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: insert <key> <value>")
		return
	}
	key := kvtypes.BytesKey(args[0])
	value := kvtypes.BytesValue(args[1])
	if err := store.Insert(key, value); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func handleDelete(store *kvslite.Store, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: delete <key>")
		return
	}
	if err := store.Delete(kvtypes.BytesKey(args[0])); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func handleStats(store *kvslite.Store) {
	stats := store.Stats()
	fmt.Println("index statistics:")
	fmt.Printf("  global depth:    %d\n", stats.GlobalDepth)
	fmt.Printf("  pages allocated: %d\n", stats.PagesAllocated)
}

func handleCheckpoint(store *kvslite.Store) {
	if err := store.Checkpoint(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("checkpoint complete")
}

func showHelp() {
	fmt.Println()
	fmt.Println("  get <key>             - look up a key")
	fmt.Println("  put <key> <value>     - insert or overwrite a key")
	fmt.Println("  insert <key> <value>  - insert, fail if the key exists")
	fmt.Println("  delete <key>          - remove a key")
	fmt.Println("  stats                 - show index statistics")
	fmt.Println("  checkpoint            - flush index and log to disk")
	fmt.Println("  help                  - show this help")
	fmt.Println("  exit, quit            - exit the shell")
	fmt.Println()
}
