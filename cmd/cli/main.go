package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/closemarketing/go-checkout-links/pkg/adapters/repository/sqlite"
	"github.com/closemarketing/go-checkout-links/pkg/config"
	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")

	if len(os.Args) < 2 {
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}

	cfg := config.Load()
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		doExport(repo)
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		doImport(repo, *importFile)
	default:
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}
}

func doExport(repo *sqlite.SQLiteRepository) {
	links, err := repo.Dump(context.Background())
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(links); err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
}

func doImport(repo *sqlite.SQLiteRepository, filename string) {
	file, err := os.Open(filename)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()

	var links []domain.Link
	if err := json.NewDecoder(file).Decode(&links); err != nil {
		log.Fatalf("Decode failed: %v", err)
	}

	ctx := context.Background()
	count := 0
	for _, l := range links {
		// Tokens are unique; skip any that already exist so re-running an
		// import stays safe.
		existing, _ := repo.GetByToken(ctx, l.Token)
		if existing != nil {
			log.Printf("Skipping existing token: %s", l.Token)
			continue
		}

		if l.Status == "" {
			l.Status = domain.StatusActive
		}

		if err := repo.Create(ctx, &l); err != nil {
			log.Printf("Failed to import %s: %v", l.Token, err)
		} else {
			count++
		}
	}
	log.Printf("Imported %d links", count)
}
