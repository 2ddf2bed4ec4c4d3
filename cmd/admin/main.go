package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/resumekit/fileintake/pkg/fileintake"
	memoryrepo "github.com/resumekit/fileintake/pkg/fileintake/repo/memory"
	pgrepo "github.com/resumekit/fileintake/pkg/fileintake/repo/postgres"
)

const usage = `File Intake Admin CLI

A lightweight admin tool for file records that only requires database access.
Operations touching stored bytes (purge) go through the server instead.

USAGE:
  admin <command> [options]

COMMANDS:
  list      List an owner's file records
  inspect   Show one record in full, including soft-deleted ones
  stats     Category statistics for an owner
  restore   Restore a soft-deleted record

ENVIRONMENT VARIABLES:
  DATABASE_URL      PostgreSQL connection string (required for postgres)
  DATABASE_TYPE     Database type: postgres or memory (default: memory)

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  # List records for an owner
  admin list --owner-id=550e8400-e29b-41d4-a716-446655440000

  # Include soft-deleted records
  admin list --owner-id=<uuid> --include-deleted

  # Filter by category, paginate
  admin list --owner-id=<uuid> --category=archived --limit=10 --offset=0

  # Show one record
  admin inspect 6f1e8400-e29b-41d4-a716-446655440abc

  # Category breakdown
  admin stats --owner-id=<uuid>

  # Bring a soft-deleted record back
  admin restore 6f1e8400-e29b-41d4-a716-446655440abc

  # Output as JSON
  admin list --owner-id=<uuid> --json

OPTIONS:
  --owner-id=<uuid>     Owner whose records to operate on (list/stats)
  --category=<name>     Filter by category (active, archived, draft)
  --limit=<n>           Maximum results (list only, default: 100)
  --offset=<n>          Pagination offset (list only, default: 0)
  --include-deleted     Include soft-deleted records
  --json                Output as JSON
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage)
		os.Exit(0)
	}

	repo, err := createRepository()
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	ctx := context.Background()
	opts := parseOptions(os.Args[2:])

	switch command {
	case "list":
		handleList(ctx, repo, opts)
	case "inspect":
		handleInspect(ctx, repo, opts)
	case "stats":
		handleStats(ctx, repo, opts)
	case "restore":
		handleRestore(ctx, repo, opts)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func createRepository() (fileintake.Repository, error) {
	dbType := getEnv("DATABASE_TYPE", "memory")

	switch dbType {
	case "postgres":
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for postgres")
		}

		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return pgrepo.NewWithPool(pool), nil

	case "memory":
		return memoryrepo.New(), nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s (use 'postgres' or 'memory')", dbType)
	}
}

type cliOptions struct {
	ownerID        *uuid.UUID
	fileID         *uuid.UUID
	category       *fileintake.Category
	limit          int
	offset         int
	includeDeleted bool
	useJSON        bool
}

func parseOptions(args []string) cliOptions {
	opts := cliOptions{limit: 100}

	for _, arg := range args {
		if arg == "--json" {
			opts.useJSON = true
			continue
		}
		if arg == "--include-deleted" {
			opts.includeDeleted = true
			continue
		}

		key, value := parseFlag(arg)
		switch key {
		case "owner-id":
			if id, err := uuid.Parse(value); err == nil {
				opts.ownerID = &id
			}
		case "category":
			c := fileintake.Category(value)
			if c.Valid() {
				opts.category = &c
			}
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				opts.limit = n
			}
		case "offset":
			if n, err := strconv.Atoi(value); err == nil {
				opts.offset = n
			}
		case "":
			// Positional argument: the record id for inspect/restore.
			if id, err := uuid.Parse(arg); err == nil {
				opts.fileID = &id
			}
		}
	}

	return opts
}

func parseFlag(arg string) (string, string) {
	if len(arg) > 2 && arg[:2] == "--" {
		arg = arg[2:]
		for i, c := range arg {
			if c == '=' {
				return arg[:i], arg[i+1:]
			}
		}
		return arg, "true"
	}
	return "", ""
}

func handleList(ctx context.Context, repo fileintake.Repository, opts cliOptions) {
	if opts.ownerID == nil {
		log.Fatal("list requires --owner-id")
	}

	records, err := repo.ListFiles(ctx, *opts.ownerID, fileintake.FileListFilters{
		Category:       opts.category,
		IncludeDeleted: opts.includeDeleted,
		Limit:          &opts.limit,
		Offset:         &opts.offset,
	})
	if err != nil {
		log.Fatalf("Failed to list files: %v", err)
	}

	if opts.useJSON {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tSEQ\tCATEGORY\tTHUMB\tMIRROR\tACTIVE\tCREATED\n")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%t\t%s\n",
			record.ID.String()[:8]+"...",
			truncate(record.DisplayName, 24),
			record.DuplicateSequence,
			record.Category,
			record.ThumbnailStatus,
			record.MirrorStatus,
			record.IsActive,
			record.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d", len(records))
	if len(records) == opts.limit {
		fmt.Printf(" (use --offset=%d to continue)", opts.offset+opts.limit)
	}
	fmt.Println()
}

func handleInspect(ctx context.Context, repo fileintake.Repository, opts cliOptions) {
	if opts.fileID == nil {
		log.Fatal("inspect requires a file id argument")
	}

	record, err := repo.GetFile(ctx, *opts.fileID, true)
	if err != nil {
		log.Fatalf("Failed to get file: %v", err)
	}

	data, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(data))
}

func handleStats(ctx context.Context, repo fileintake.Repository, opts cliOptions) {
	if opts.ownerID == nil {
		log.Fatal("stats requires --owner-id")
	}

	stats, err := repo.CategoryStats(ctx, *opts.ownerID)
	if err != nil {
		log.Fatalf("Failed to get statistics: %v", err)
	}

	if opts.useJSON {
		data, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println("=== Category Statistics ===")
	fmt.Printf("\nTotal: %d\n\n", stats.Total)
	for _, category := range fileintake.Categories() {
		fmt.Printf("  %-10s: %d\n", category, stats.ByCategory[category])
	}
}

func handleRestore(ctx context.Context, repo fileintake.Repository, opts cliOptions) {
	if opts.fileID == nil {
		log.Fatal("restore requires a file id argument")
	}

	record, err := repo.GetFile(ctx, *opts.fileID, true)
	if err != nil {
		log.Fatalf("Failed to get file: %v", err)
	}
	if record.IsActive {
		fmt.Printf("Record %s is already active\n", record.ID)
		return
	}

	if err := repo.RestoreFile(ctx, *opts.fileID); err != nil {
		log.Fatalf("Failed to restore file: %v", err)
	}
	fmt.Printf("Restored %s (%s)\n", record.ID, record.DisplayName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
