package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"lexform-backend/internal/admin"
	"lexform-backend/internal/auth"
	"lexform-backend/internal/config"
	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

// operator acts for formctl against the database; it holds the platform
// admin role so it can write in any scope.
var operator = &metadata.UserContext{ID: "formctl", Role: metadata.RoleAdmin}

func main() {
	app := &cli.Command{
		Name:  "formctl",
		Usage: "Manage lexform template definitions",
		Commands: []*cli.Command{
			validateCmd(),
			importCmd(),
			exportCmd(),
			tokenCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printDetails(err)
		os.Exit(1)
	}
}

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check definition files without touching the database",
		ArgsUsage: "<file>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("at least one definition file is required")
			}
			failed := 0
			for _, path := range files {
				if _, err := build(path); err != nil {
					fmt.Printf("FAIL %s: %v\n", path, err)
					printDetails(err)
					failed++
					continue
				}
				fmt.Printf("OK   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(files))
			}
			return nil
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create templates from definition files",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "org", Usage: "Organization ID (omit for a global template)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("at least one definition file is required")
			}
			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := admin.NewService(db, nil)
			for _, path := range files {
				def, err := admin.ReadDefinition(path)
				if err != nil {
					return err
				}
				t, err := svc.Import(ctx, operator, cmd.String("org"), def)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("imported %s as %s (%d screens)\n", t.Slug, t.ID, len(t.Screens))
			}
			return nil
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Print a stored template as a YAML definition",
		ArgsUsage: "<slug>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "org", Usage: "Organization ID (omit for a global template)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			slug := cmd.Args().First()
			if slug == "" {
				return fmt.Errorf("template slug is required")
			}
			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			def, err := admin.NewService(db, nil).Export(ctx, operator, cmd.String("org"), slug)
			if err != nil {
				return err
			}
			out, err := def.YAML()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an access token signed with the configured secret (development use)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Subject user ID", Required: true},
			&cli.StringFlag{Name: "role", Usage: "Platform role: admin, editor or member", Value: metadata.RoleMember},
			&cli.StringFlag{Name: "org", Usage: "Organization ID carried in the token"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.GenerateAccessToken(cmd.String("user"), cmd.String("role"), cmd.String("org"), cfg.JWTSecret)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func build(path string) (*metadata.Template, error) {
	def, err := admin.ReadDefinition(path)
	if err != nil {
		return nil, err
	}
	return def.Build()
}

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := db.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return db, nil
}

func printDetails(err error) {
	var appErr *engine.AppError
	if !errors.As(err, &appErr) {
		return
	}
	for _, d := range appErr.Details {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", d.Field, d.Message)
	}
}
