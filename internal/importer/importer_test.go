package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/store"
	"github.com/inkwellapp/inkwell-client/internal/validation"
)

func newTestImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return New(s, validation.New(), logger), s
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testBook(t *testing.T) *domain.Book {
	return &domain.Book{
		Title:       "Crime and Punishment",
		Author:      "Fyodor Dostoevsky",
		Description: "<p>A novel about <b>guilt</b>.</p>",
		Language:    "English",
		Sections: []domain.Section{
			{ID: "ch1", Title: "Part One", HTML: "<p>On an exceptionally hot evening early in July</p>"},
			{ID: "ch2", Title: "Part Two", HTML: "<p>He lay a long while on the sofa</p>"},
		},
		Images: []domain.ImageAsset{
			{Name: "cover.png", MediaType: "image/png", Data: testPNG(t, 600, 900)},
		},
	}
}

func TestImportDerivesFields(t *testing.T) {
	imp, s := newTestImporter(t)
	ctx := context.Background()

	book, err := imp.Import(ctx, testBook(t))
	require.NoError(t, err)

	assert.Len(t, book.UniqueID, 64, "blake2b-256 hex id")
	assert.NotZero(t, book.LocalID)
	assert.Equal(t, "en", book.Language)
	assert.Equal(t, "A novel about **guilt**.", book.Description)
	assert.Positive(t, book.Sections[0].Chars)
	assert.Equal(t, book.Sections[0].Chars+book.Sections[1].Chars, book.TotalChars)

	summary, err := s.GetSummary(ctx, book.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, summary.Title)
	assert.NotEmpty(t, summary.Cover)
	assert.Equal(t, "image/jpeg", summary.CoverMediaType)
	assert.NotEmpty(t, summary.CoverBlurHash)

	// Thumbnail fits the list bound.
	img, _, err := image.Decode(bytes.NewReader(summary.Cover))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 480)
	assert.LessOrEqual(t, img.Bounds().Dy(), 480)
}

func TestImportStableUniqueID(t *testing.T) {
	imp, _ := newTestImporter(t)
	ctx := context.Background()

	first, err := imp.Import(ctx, testBook(t))
	require.NoError(t, err)

	second := testBook(t)
	second.Images = nil // cover does not affect identity
	got, err := imp.Import(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.UniqueID, got.UniqueID)
}

func TestDuplicateImportIsNoOp(t *testing.T) {
	imp, s := newTestImporter(t)
	ctx := context.Background()

	first, err := imp.Import(ctx, testBook(t))
	require.NoError(t, err)

	// The user reads a bit, then re-imports the same file.
	require.NoError(t, s.UpdateProgress(ctx, first.UniqueID, 25, 1, first.UpdatedAt.Add(1)))

	again, err := imp.Import(ctx, testBook(t))
	require.NoError(t, err)
	assert.Equal(t, first.LocalID, again.LocalID)
	assert.Equal(t, 25, again.CurrChars, "progress survives re-import")

	summaries, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestImportRejectsInvalid(t *testing.T) {
	imp, _ := newTestImporter(t)
	ctx := context.Background()

	book := testBook(t)
	book.Title = ""
	_, err := imp.Import(ctx, book)
	assert.True(t, errors.Is(err, domainerrors.ErrValidation))

	book = testBook(t)
	book.Sections = nil
	_, err = imp.Import(ctx, book)
	assert.True(t, errors.Is(err, domainerrors.ErrValidation))
}

func TestImportSurvivesBrokenCover(t *testing.T) {
	imp, s := newTestImporter(t)
	ctx := context.Background()

	book := testBook(t)
	book.Images = []domain.ImageAsset{
		{Name: "cover.png", MediaType: "image/png", Data: []byte("not an image")},
	}

	imported, err := imp.Import(ctx, book)
	require.NoError(t, err)

	summary, err := s.GetSummary(ctx, imported.UniqueID)
	require.NoError(t, err)
	assert.Empty(t, summary.Cover)
	assert.Empty(t, summary.CoverBlurHash)
}

func TestCountChars(t *testing.T) {
	tests := []struct {
		html string
		want int
	}{
		{"<p>hello</p>", 5},
		{"<p>hello <b>world</b></p>", 11},
		{"<div><script>var x = 1;</script>text</div>", 4},
		{"   ", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countChars(tt.html), "html: %s", tt.html)
	}
}

func TestPickCoverImage(t *testing.T) {
	images := []domain.ImageAsset{
		{Name: "figure1.png"},
		{Name: "Cover_Art.jpg"},
	}
	picked := pickCoverImage(images)
	require.NotNil(t, picked)
	assert.Equal(t, "Cover_Art.jpg", picked.Name)

	picked = pickCoverImage([]domain.ImageAsset{{Name: "only.png"}})
	require.NotNil(t, picked)
	assert.Equal(t, "only.png", picked.Name)

	assert.Nil(t, pickCoverImage(nil))
}
