package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/xuri/excelize/v2"
)

func main() {
	filePath := flag.String("file", "", "XLSX file with columns email, name, password and optional role")
	sheet := flag.String("sheet", "", "sheet name (defaults to the first sheet)")
	flag.Parse()

	logger.Initialize(logger.Config{Level: "info", Format: "console", EnableColor: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	userRepo := repository.NewUserRepository(db.GetDB())
	ctx := context.Background()

	var rows []accountRow
	if *filePath == "" {
		admin, err := adminFromEnv()
		if err != nil {
			logger.Fatal("Nothing to seed", err)
		}
		rows = []accountRow{admin}
	} else {
		f, err := excelize.OpenFile(*filePath)
		if err != nil {
			logger.Fatal("Failed to open XLSX file", err, map[string]interface{}{
				"file": *filePath,
			})
		}
		defer f.Close()

		var rejected []rowError
		rows, rejected, err = readAccounts(f, *sheet)
		if err != nil {
			logger.Fatal("Failed to read accounts", err)
		}
		for _, r := range rejected {
			logger.Warn("Skipping spreadsheet row", map[string]interface{}{
				"row":    r.Row,
				"reason": r.Reason,
			})
		}
	}

	summary := importAccounts(ctx, userRepo, rows)
	fmt.Printf("Accounts created: %d, already existing: %d, failed: %d\n",
		summary.Created, summary.Existing, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func adminFromEnv() (accountRow, error) {
	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return accountRow{}, fmt.Errorf("pass -file or set SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD")
	}
	return accountRow{
		Email:    email,
		Name:     "Administrador",
		Password: password,
		Role:     model.RoleAdmin,
	}, nil
}
