package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uk030621/MultiAdaptDB/internal/adapters/allowlist"
	sqliteadapter "github.com/uk030621/MultiAdaptDB/internal/adapters/db/sqlite"
	httpadapter "github.com/uk030621/MultiAdaptDB/internal/adapters/http"
	rpcadapter "github.com/uk030621/MultiAdaptDB/internal/adapters/rpcjson"
	"github.com/uk030621/MultiAdaptDB/internal/application"
	"github.com/uk030621/MultiAdaptDB/internal/domain"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "multiadaptdb",
		Usage: "Configurable database builder server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			actorCommand(),
			databasesCommand(),
			fieldsCommand(),
			recordsCommand(),
			syncCommand(),
			accessCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServer(ctx, envOr("HTTP_ADDR", ":8080"), envOr("RPC_SOCKET", "/tmp/multiadaptdb.sock"), envOr("DB_PATH", "multiadaptdb.db"), envOr("SEED_ALLOWED_EMAILS", ""))
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: envOr("HTTP_ADDR", ":8080"), Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Value: envOr("RPC_SOCKET", "/tmp/multiadaptdb.sock"), Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Value: envOr("DB_PATH", "multiadaptdb.db"), Usage: "SQLite database path"},
			&cli.StringFlag{Name: "seed-allowed", Value: envOr("SEED_ALLOWED_EMAILS", ""), Usage: "csv emails seeded into the allow-list when it is empty"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("addr"), c.String("rpc-socket"), c.String("db-path"), c.String("seed-allowed"))
		},
	}
}

func runServer(ctx context.Context, addr, rpcSocket, dbPath, seedAllowed string) error {
	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	store := sqliteadapter.NewDocumentStore(db)
	if seedAllowed != "" {
		if err := allowlist.Seed(ctx, store, strings.Split(seedAllowed, ",")); err != nil {
			return err
		}
	}
	service := application.NewBuilderService(store, allowlist.New(store))

	router := httpadapter.NewRouter(service)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(rpcSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	log.Printf("json-rpc listening on unix://%s", rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func actorCommand() *cli.Command {
	return &cli.Command{
		Name:  "actor",
		Usage: "Manage the email the CLI acts as",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store the actor email used for mutations",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/multiadaptdb.sock"},
					&cli.StringFlag{Name: "email", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket"), Actor: c.String("email")}
					if err := saveConfig(cfg); err != nil {
						return err
					}
					printOK("acting as %s", cfg.Actor)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the current actor email",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if cfg.Actor == "" {
						fmt.Println("no actor set")
						return nil
					}
					printKV([][2]string{{"actor", cfg.Actor}, {"transport", cfg.Transport}})
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Clear the stored actor email",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					cfg.Actor = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					printOK("actor cleared")
					return nil
				},
			},
		},
	}
}

func databasesCommand() *cli.Command {
	return &cli.Command{
		Name:  "databases",
		Usage: "Database slot commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the database slots",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Slot
					if err := doSlotsList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSlots(out)
					return nil
				},
			},
			{
				Name:  "rename",
				Usage: "Rename a database slot",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Slot
					if err := doSlotRename(ctx, cfg, c.Int("slot"), c.String("name"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSlots(out)
					return nil
				},
			},
		},
	}
}

func fieldsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fields",
		Usage: "Field definition commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List field definitions for a slot",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.FieldDefinition
					if err := doFieldsList(ctx, cfg, c.Int("slot"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printFields(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a field definition",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "label", Required: true},
					&cli.StringFlag{Name: "type", Value: "text"},
					&cli.StringFlag{Name: "name", Usage: "storage key, generated when empty"},
					&cli.StringFlag{Name: "options", Usage: "csv option values for select fields"},
					&cli.IntFlag{Name: "order"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.FieldDefinition
					err = doFieldCreate(ctx, cfg, c.Int("slot"), domain.FieldDefinition{
						Name:    c.String("name"),
						Label:   c.String("label"),
						Type:    domain.FieldType(c.String("type")),
						Options: splitCSV(c.String("options")),
						Order:   c.Int("order"),
					}, &out)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printFields([]domain.FieldDefinition{out})
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Update a field definition",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "label"},
					&cli.StringFlag{Name: "type"},
					&cli.StringFlag{Name: "options", Usage: "csv option values"},
					&cli.IntFlag{Name: "order"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					patch := map[string]any{}
					if c.IsSet("label") {
						patch["label"] = c.String("label")
					}
					if c.IsSet("type") {
						patch["type"] = c.String("type")
					}
					if c.IsSet("options") {
						patch["options"] = splitCSV(c.String("options"))
					}
					if c.IsSet("order") {
						patch["order"] = c.Int("order")
					}
					if err := doFieldUpdate(ctx, cfg, c.Int("slot"), c.String("id"), patch); err != nil {
						return err
					}
					printOK("field %s updated", c.String("id"))
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a field definition and strip its key from records",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doFieldDelete(ctx, cfg, c.Int("slot"), c.String("id")); err != nil {
						return err
					}
					printOK("field %s deleted", c.String("id"))
					return nil
				},
			},
			{
				Name:  "reorder",
				Usage: "Reorder field definitions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "ids", Required: true, Usage: "csv field ids in the new order"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					ids := splitCSV(c.String("ids"))
					var out []domain.FieldDefinition
					if err := doFieldsReorder(ctx, cfg, c.Int("slot"), ids, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printFields(out)
					return nil
				},
			},
		},
	}
}

func recordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Record commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List records in a slot",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "q", Usage: "case-insensitive filter term"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Record
					if err := doRecordsList(ctx, cfg, c.Int("slot"), c.String("q"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRecords(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a record",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "attrs", Required: true, Usage: "JSON object of field values"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					attrs, err := parseAttrs(c.String("attrs"))
					if err != nil {
						return err
					}
					var out domain.Record
					if err := doRecordCreate(ctx, cfg, c.Int("slot"), attrs, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRecords([]domain.Record{out})
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Update a record",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "attrs", Required: true, Usage: "JSON object of field values"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					attrs, err := parseAttrs(c.String("attrs"))
					if err != nil {
						return err
					}
					if err := doRecordUpdate(ctx, cfg, c.Int("slot"), c.String("id"), attrs); err != nil {
						return err
					}
					printOK("record %s updated", c.String("id"))
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a record",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doRecordDelete(ctx, cfg, c.Int("slot"), c.String("id")); err != nil {
						return err
					}
					printOK("record %s deleted", c.String("id"))
					return nil
				},
			},
			{
				Name:  "purge",
				Usage: "Delete every record in a slot",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "slot", Required: true},
					&cli.BoolFlag{Name: "yes", Usage: "skip confirmation"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if !c.Bool("yes") {
						return fmt.Errorf("refusing to purge slot %d without --yes", c.Int("slot"))
					}
					if err := doRecordsPurge(ctx, cfg, c.Int("slot")); err != nil {
						return err
					}
					printOK("slot %d purged", c.Int("slot"))
					return nil
				},
			},
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Schema sync commands",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Reconcile records against the field definitions of a slot",
				Flags: []cli.Flag{&cli.IntFlag{Name: "slot", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doSyncRun(ctx, cfg, c.Int("slot")); err != nil {
						return err
					}
					printOK("slot %d resynced", c.Int("slot"))
					return nil
				},
			},
		},
	}
}

func accessCommand() *cli.Command {
	return &cli.Command{
		Name:  "access",
		Usage: "Allow-list commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List allowed emails",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.AllowedEmail
					if err := doAccessList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAllowed(out)
					return nil
				},
			},
			{
				Name:  "allow",
				Usage: "Add an email to the allow-list",
				Flags: []cli.Flag{&cli.StringFlag{Name: "email", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doAccessAllow(ctx, cfg, c.String("email")); err != nil {
						return err
					}
					printOK("%s allowed", c.String("email"))
					return nil
				},
			},
			{
				Name:  "disallow",
				Usage: "Remove an email from the allow-list",
				Flags: []cli.Flag{&cli.StringFlag{Name: "email", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doAccessDisallow(ctx, cfg, c.String("email")); err != nil {
						return err
					}
					printOK("%s disallowed", c.String("email"))
					return nil
				},
			},
		},
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAttrs(raw string) (map[string]any, error) {
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("--attrs must be a JSON object: %w", err)
	}
	return attrs, nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
