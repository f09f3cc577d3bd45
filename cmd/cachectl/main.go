package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sectorfs/cachefs/pkg/cache"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list":
		listCommand()
	case "read":
		readCommand()
	case "extract":
		extractCommand()
	case "checksums":
		checksumsCommand()
	case "hash":
		hashCommand()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cachectl - sector-file cache inspection tool

Usage:
  cachectl <command> [options]

Commands:
  list       List archive ids present in an index's reference table
  read       Read one archive and write its decoded bytes to stdout
  extract    Decode one archive as a container and extract a single member
  checksums  Build and print the cache's checksum table
  hash       Hash a name with the cache's name->id function

Examples:
  cachectl list --root /var/cache/game --idx 0
  cachectl read --root /var/cache/game --idx 0 --id 7 > archive.bin
  cachectl extract --root /var/cache/game --idx 0 --id 7 --member 2 > member.bin
  cachectl checksums --root /var/cache/game
  cachectl hash --name config
`)
}

func openStore(root string) *cache.CacheStore {
	store, err := cache.Open(cache.OpenOptions{RootDir: root})
	if err != nil {
		log.Fatal().Err(err).Str("root", root).Msg("failed to open cache store")
	}
	return store
}

func listCommand() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	root := fs.String("root", "", "cache root directory (required)")
	idx := fs.Int("idx", 0, "data-plane index file id")
	fs.Parse(os.Args[2:])

	if *root == "" {
		fmt.Fprintf(os.Stderr, "Error: --root is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*root)
	defer store.Close()

	rt, err := store.ReferenceTable(*idx)
	if err != nil {
		log.Fatal().Err(err).Int("idx", *idx).Msg("failed to load reference table")
	}

	rt.Each(func(e *cache.Entry) bool {
		fmt.Printf("%d\tcrc=%d\tversion=%d\tchildren=%d\n", e.ID, e.CRC, e.Version, e.ChildCount())
		return true
	})
}

func readCommand() {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	root := fs.String("root", "", "cache root directory (required)")
	idx := fs.Int("idx", 0, "data-plane index file id")
	id := fs.Int("id", -1, "archive id (required)")
	fs.Parse(os.Args[2:])

	if *root == "" || *id < 0 {
		fmt.Fprintf(os.Stderr, "Error: --root and --id are required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*root)
	defer store.Close()

	payload, err := store.Read(*idx, *id, nil)
	if err != nil {
		log.Fatal().Err(err).Int("idx", *idx).Int("id", *id).Msg("failed to read archive")
	}

	os.Stdout.Write(payload.Data)
}

func extractCommand() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	root := fs.String("root", "", "cache root directory (required)")
	idx := fs.Int("idx", 0, "data-plane index file id")
	id := fs.Int("id", -1, "archive id (required)")
	member := fs.Int("member", -1, "container member index (required)")
	fs.Parse(os.Args[2:])

	if *root == "" || *id < 0 || *member < 0 {
		fmt.Fprintf(os.Stderr, "Error: --root, --id and --member are required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*root)
	defer store.Close()

	data, err := store.ReadMember(*idx, *id, *member, nil)
	if err != nil {
		log.Fatal().Err(err).Int("idx", *idx).Int("id", *id).Int("member", *member).Msg("failed to extract member")
	}

	os.Stdout.Write(data)
}

func checksumsCommand() {
	fs := flag.NewFlagSet("checksums", flag.ExitOnError)
	root := fs.String("root", "", "cache root directory (required)")
	format := fs.String("format", "json", "output format (json, compact)")
	fs.Parse(os.Args[2:])

	if *root == "" {
		fmt.Fprintf(os.Stderr, "Error: --root is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*root)
	defer store.Close()

	ct := store.CreateChecksumTable()

	switch *format {
	case "compact":
		os.Stdout.Write(ct.EncodeCompact())
	default:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(ct.Entries)
	}
}

func hashCommand() {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	name := fs.String("name", "", "name to hash (required)")
	fs.Parse(os.Args[2:])

	if *name == "" {
		fmt.Fprintf(os.Stderr, "Error: --name is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	fmt.Println(cache.FileNameHash(*name))
}
