// Command musica is the CLI and server entrypoint: "find" and "save"
// fingerprint files directly against the catalog, "erase" clears it,
// and "serve" exposes the same catalog over HTTP and the streaming
// websocket protocol.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	_ = os.MkdirAll(cfg.SongsDir, 0o755)
	_ = os.MkdirAll("tmp", 0o755)

	store, err := catalog.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("error opening catalog: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch os.Args[1] {
	case "find":
		if len(os.Args) < 3 {
			fmt.Println("usage: musica find <path_to_audio_file>")
			os.Exit(1)
		}
		find(store, os.Args[2])

	case "save":
		saveCmd := flag.NewFlagSet("save", flag.ExitOnError)
		force := saveCmd.Bool("force", false, "index file even without a usable artist tag")
		saveCmd.BoolVar(force, "f", false, "shorthand for -force")
		saveCmd.Parse(os.Args[2:])
		if saveCmd.NArg() < 1 {
			fmt.Println("usage: musica save [-f|--force] <path_to_file_or_dir>")
			os.Exit(1)
		}
		save(store, saveCmd.Arg(0), *force)

	case "erase":
		all := false
		if len(os.Args) > 2 {
			switch os.Args[2] {
			case "db":
				all = false
			case "all":
				all = true
			default:
				fmt.Println("usage: musica erase [db | all]")
				os.Exit(1)
			}
		}
		erase(store, cfg.SongsDir, all)

	case "serve":
		serve(store, cfg)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: musica <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  find  <audio_file>         match a file against the catalog")
	fmt.Println("  save  [-f] <file_or_dir>   fingerprint and register audio file(s)")
	fmt.Println("  erase [db | all]           clear the catalog (and optionally audio files)")
	fmt.Println("  serve                      start the HTTP/websocket server")
}
