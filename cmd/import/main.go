package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"subtracker/internal/infra/sqlite3"
	"subtracker/internal/storage"
	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
)

// Columns: name,price,currency,frequency,category,payment_method,start_date[,renewal_date]
const minColumns = 7

func main() {
	dbPath := flag.String("db", "./data/subtracker.db", "path to SQLite database")
	csvPath := flag.String("csv", "./subscriptions.csv", "path to CSV file")
	userID := flag.Int64("user", 0, "id of the user the subscriptions belong to")
	dryRun := flag.Bool("dry-run", false, "show what would be imported without writing to DB")
	flag.Parse()

	if *userID == 0 {
		log.Fatal("user ID is required: -user <id>")
	}

	ctx := context.Background()

	db, err := sqlite3.New(ctx, sqlite3.WithDSN(*dbPath))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store := storage.New(db.DB)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	user, err := store.GetUser(ctx, users.GetCriteria{ID: userID})
	if err != nil {
		log.Fatalf("failed to load user: %v", err)
	}
	if user == nil {
		log.Fatalf("user %d not found", *userID)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *csvPath, err)
	}
	defer file.Close()

	rows, skipped, err := readCSV(file, user.ID, time.Now().UTC())
	if err != nil {
		log.Fatalf("failed to read %s: %v", *csvPath, err)
	}

	for _, row := range rows {
		fmt.Printf("  %s: %s %.2f %s, renews %s (%s)\n",
			row.Name, row.Currency, row.Price, row.Frequency,
			row.RenewalDate.Format(time.DateOnly), row.Status)
	}

	imported := 0
	if !*dryRun {
		imported, err = store.ImportSubscriptions(ctx, rows)
		if err != nil {
			log.Fatalf("import failed, nothing was written: %v", err)
		}
	}

	fmt.Printf("\n=== TOTAL ===\n")
	fmt.Printf("Valid: %d\n", len(rows))
	fmt.Printf("Imported: %d\n", imported)
	fmt.Printf("Skipped: %d\n", skipped)

	if *dryRun {
		fmt.Println("\n(DRY RUN - nothing was written to database)")
	} else if imported > 0 {
		fmt.Println("\nReminder workflows for active subscriptions are started by the retry-trigger worker.")
	}
}

// readCSV parses every data row. Rows that fail validation are reported and
// counted as skipped. The first row is a header.
func readCSV(r io.Reader, userID int64, now time.Time) ([]subs.Subscription, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, err
	}

	var (
		rows    []subs.Subscription
		skipped int
	)
	for i, record := range records {
		if i == 0 {
			continue
		}

		sub, err := parseRecord(record, userID, now)
		if err != nil {
			fmt.Printf("  SKIP row %d: %v\n", i+1, err)
			skipped++
			continue
		}
		rows = append(rows, sub)
	}

	return rows, skipped, nil
}

func parseRecord(record []string, userID int64, now time.Time) (subs.Subscription, error) {
	if len(record) < minColumns {
		return subs.Subscription{}, fmt.Errorf("expected at least %d columns, got %d", minColumns, len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	name := record[0]
	if len(name) < 2 || len(name) > 100 {
		return subs.Subscription{}, fmt.Errorf("invalid name %q", name)
	}

	price, err := strconv.ParseFloat(record[1], 64)
	if err != nil || price <= 0 {
		return subs.Subscription{}, fmt.Errorf("invalid price %q", record[1])
	}

	currency := subs.Currency(strings.ToUpper(record[2]))
	switch currency {
	case "":
		currency = subs.CurrencyUSD
	case subs.CurrencyUSD, subs.CurrencyEUR, subs.CurrencyGBP:
	default:
		return subs.Subscription{}, fmt.Errorf("unknown currency %q", record[2])
	}

	frequency := subs.Frequency(strings.ToLower(record[3]))

	category := subs.Category(strings.ToLower(record[4]))
	switch category {
	case subs.CategorySports, subs.CategoryNews, subs.CategoryEntertainment, subs.CategoryLifestyle,
		subs.CategoryTechnology, subs.CategoryFinance, subs.CategoryPolitics, subs.CategoryOther:
	default:
		return subs.Subscription{}, fmt.Errorf("unknown category %q", record[4])
	}

	paymentMethod := record[5]
	if paymentMethod == "" {
		return subs.Subscription{}, errors.New("payment method is required")
	}

	startDate, err := parseDate(record[6])
	if err != nil {
		return subs.Subscription{}, fmt.Errorf("invalid start_date: %w", err)
	}

	var renewal *time.Time
	if len(record) > minColumns && record[minColumns] != "" {
		d, err := parseDate(record[minColumns])
		if err != nil {
			return subs.Subscription{}, fmt.Errorf("invalid renewal_date: %w", err)
		}
		renewal = &d
	}

	renewalDate, status, err := subs.ResolveRenewal(startDate, frequency, renewal, now)
	if err != nil {
		return subs.Subscription{}, err
	}

	return subs.Subscription{
		UserID:        userID,
		Name:          name,
		Price:         price,
		Currency:      currency,
		Frequency:     frequency,
		Category:      category,
		PaymentMethod: paymentMethod,
		Status:        status,
		StartDate:     startDate,
		RenewalDate:   renewalDate,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	formats := []string{
		time.DateOnly,
		time.RFC3339,
		"02.01.2006",
	}

	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date: %s", s)
}
