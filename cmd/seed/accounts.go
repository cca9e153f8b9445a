package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/app/service"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/lojamoda/storefront-auth/pkg/util"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type accountRow struct {
	Row      int
	Email    string
	Name     string
	Password string
	Role     model.UserRole
}

type rowError struct {
	Row    int
	Reason string
}

type importSummary struct {
	Created  int
	Existing int
	Failed   int
}

var requiredColumns = []string{"email", "name", "password"}

// readAccounts reads the header row to locate columns, so column order in
// the sheet does not matter. Row numbers are 1-based as shown in Excel.
func readAccounts(f *excelize.File, sheet string) ([]accountRow, []rowError, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, nil, errors.New("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("sheet is empty")
	}

	columns := make(map[string]int)
	for i, header := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var accounts []accountRow
	var rejected []rowError
	seen := make(map[string]int)

	for i, row := range rows[1:] {
		rowNum := i + 2

		email := service.NormalizeEmail(cell(row, "email"))
		password := cell(row, "password")
		if email == "" && password == "" && cell(row, "name") == "" {
			continue
		}
		if email == "" || !strings.Contains(email, "@") {
			rejected = append(rejected, rowError{Row: rowNum, Reason: "invalid email"})
			continue
		}
		if len(password) < 8 {
			rejected = append(rejected, rowError{Row: rowNum, Reason: "password shorter than 8 characters"})
			continue
		}
		if first, dup := seen[email]; dup {
			rejected = append(rejected, rowError{Row: rowNum, Reason: fmt.Sprintf("duplicate of row %d", first)})
			continue
		}

		role := model.RoleUser
		switch strings.ToLower(cell(row, "role")) {
		case "", "user":
		case "admin":
			role = model.RoleAdmin
		default:
			rejected = append(rejected, rowError{Row: rowNum, Reason: "unknown role"})
			continue
		}

		seen[email] = rowNum
		accounts = append(accounts, accountRow{
			Row:      rowNum,
			Email:    email,
			Name:     cell(row, "name"),
			Password: password,
			Role:     role,
		})
	}

	return accounts, rejected, nil
}

func importAccounts(ctx context.Context, userRepo repository.UserRepository, rows []accountRow) importSummary {
	var summary importSummary

	for _, row := range rows {
		fields := map[string]interface{}{"row": row.Row, "email": row.Email}

		_, err := userRepo.FindByEmail(ctx, row.Email)
		if err == nil {
			summary.Existing++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to look up account", err, fields)
			summary.Failed++
			continue
		}

		hashed, err := util.HashPassword(row.Password)
		if err != nil {
			logger.Error("Failed to hash password", err, fields)
			summary.Failed++
			continue
		}

		user := &model.User{
			Email:        row.Email,
			PasswordHash: hashed,
			Name:         row.Name,
			Role:         row.Role,
		}
		if err := userRepo.Create(ctx, user); err != nil {
			summary.Failed++
			continue
		}
		summary.Created++
	}

	return summary
}
