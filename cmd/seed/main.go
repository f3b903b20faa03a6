// Package main provides a tool to seed the library with sample books
// and reading history for development.
//
// Usage:
//
//	DATA_PATH=~/Inkwell go run ./cmd/seed
//	DATA_PATH=~/Inkwell go run ./cmd/seed --sessions  # Also create reading history
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	"github.com/inkwellapp/inkwell-client/internal/id"
	"github.com/inkwellapp/inkwell-client/internal/importer"
	"github.com/inkwellapp/inkwell-client/internal/store"
	"github.com/inkwellapp/inkwell-client/internal/validation"
)

var withSessions = flag.Bool("sessions", false, "Create sample reading sessions for seeded books")

func main() {
	flag.Parse()

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Inkwell")
	}

	dbPath := filepath.Join(dataPath, "library.db")
	fmt.Printf("Opening library at: %s\n", dbPath)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := store.Open(dbPath, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	imp := importer.New(s, validation.New(), logger)

	seeded := make([]*domain.Book, 0, len(sampleBooks()))
	for _, book := range sampleBooks() {
		imported, err := imp.Import(ctx, book)
		if err != nil {
			log.Fatalf("Failed to import %q: %v", book.Title, err)
		}
		fmt.Printf("Imported: %s (%s)\n", imported.Title, imported.UniqueID)
		seeded = append(seeded, imported)
	}

	if *withSessions {
		seedSessions(ctx, s, seeded)
	}

	fmt.Println("Done.")
}

// seedSessions writes a week of plausible reading history for each book.
func seedSessions(ctx context.Context, s *store.Store, books []*domain.Book) {
	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		log.Fatalf("Failed to read device id: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := id.NewSnowflakeGenerator()

	for _, book := range books {
		position := 0
		for day := 7; day >= 1; day-- {
			started := time.Now().AddDate(0, 0, -day).Add(time.Duration(rng.Intn(12)) * time.Hour)
			spent := time.Duration(10+rng.Intn(50)) * time.Minute
			read := 2000 + rng.Intn(6000)

			session := &domain.ReadingSession{
				Snowflake:    gen.Next(),
				BookID:       book.UniqueID,
				BookTitle:    book.Title,
				BookLanguage: book.Language,
				StartedAt:    started,
				EndedAt:      started.Add(spent),
				CharsRead:    read,
				TimeSpent:    spent,
				StartChars:   position,
				EndChars:     position + read,
				DeviceID:     deviceID,
				Status:       domain.SessionActive,
			}
			if err := s.CreateSession(ctx, session); err != nil {
				log.Fatalf("Failed to create session for %q: %v", book.Title, err)
			}
			position += read
		}
		fmt.Printf("Seeded 7 sessions for: %s\n", book.Title)
	}
}

func sampleBooks() []*domain.Book {
	return []*domain.Book{
		{
			Title:       "The Time Machine",
			Author:      "H. G. Wells",
			Language:    "en",
			Description: "<p>A scientist builds a machine that carries him to the year 802,701.</p>",
			Sections: []domain.Section{
				{ID: "ch1", Title: "Introduction", HTML: "<p>The Time Traveller (for so it will be convenient to speak of him) was expounding a recondite matter to us.</p>"},
				{ID: "ch2", Title: "The Machine", HTML: "<p>The thing the Time Traveller held in his hand was a glittering metallic framework, scarcely larger than a small clock.</p>"},
				{ID: "ch3", Title: "The Time Traveller Returns", HTML: "<p>I think that at that time none of us quite believed in the Time Machine.</p>"},
			},
		},
		{
			Title:       "A Study in Scarlet",
			Author:      "Arthur Conan Doyle",
			Language:    "en",
			Description: "<p>The first adventure of Sherlock Holmes and Dr. Watson.</p>",
			Sections: []domain.Section{
				{ID: "ch1", Title: "Mr. Sherlock Holmes", HTML: "<p>In the year 1878 I took my degree of Doctor of Medicine of the University of London.</p>"},
				{ID: "ch2", Title: "The Science of Deduction", HTML: "<p>We met next day as he had arranged, and inspected the rooms at No. 221B, Baker Street.</p>"},
			},
		},
		{
			Title:       "Kärlek och misstag",
			Author:      "Anonym",
			Language:    "sv",
			Description: "<p>En kort berättelse om brev som aldrig kom fram.</p>",
			Sections: []domain.Section{
				{ID: "ch1", Title: "Brevet", HTML: "<p>Det första brevet skrevs en regnig tisdag i november.</p>"},
			},
		},
	}
}
