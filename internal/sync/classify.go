// Package sync reconciles the local library against the cloud
// service: it classifies each book by modification time, drives
// payload uploads and downloads through the codec, and pushes
// finished reading sessions in batches.
package sync

import (
	"slices"
	"strings"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	"github.com/inkwellapp/inkwell-client/internal/remote"
)

// BookStatus is the sync classification of one book.
type BookStatus string

const (
	StatusUpToDate  BookStatus = "up-to-date"
	StatusLocalNew  BookStatus = "local-new"
	StatusCloudNew  BookStatus = "cloud-new"
	StatusCloudOnly BookStatus = "cloud-only"
	StatusLocalOnly BookStatus = "local-only"
)

// Classification pairs a book with its status and whichever sides of
// it are known. Local is nil for cloud-only books, Remote is nil for
// local-only books.
type Classification struct {
	UniqueID string
	Status   BookStatus
	Local    *domain.BookSummary
	Remote   *remote.BookSummary
}

// Classify compares the local summaries against the remote listing
// and assigns each known book exactly one status. Timestamps are
// compared at millisecond granularity because that is all the wire
// carries. The result is ordered by unique id, so repeated runs over
// unchanged inputs produce identical output.
func Classify(local []*domain.BookSummary, remoteList []remote.BookSummary) []Classification {
	remoteByID := make(map[string]*remote.BookSummary, len(remoteList))
	for i := range remoteList {
		remoteByID[remoteList[i].UniqueID] = &remoteList[i]
	}

	seen := make(map[string]bool, len(local))
	classes := make([]Classification, 0, len(local)+len(remoteList))

	for _, loc := range local {
		seen[loc.UniqueID] = true

		rem, ok := remoteByID[loc.UniqueID]
		if !ok {
			classes = append(classes, Classification{
				UniqueID: loc.UniqueID,
				Status:   StatusLocalOnly,
				Local:    loc,
			})
			continue
		}

		localMs := remote.ToMillis(loc.UpdatedAt)
		var status BookStatus
		switch {
		case localMs == rem.UpdatedAt:
			status = StatusUpToDate
		case localMs > rem.UpdatedAt:
			status = StatusLocalNew
		default:
			status = StatusCloudNew
		}
		classes = append(classes, Classification{
			UniqueID: loc.UniqueID,
			Status:   status,
			Local:    loc,
			Remote:   rem,
		})
	}

	for i := range remoteList {
		if seen[remoteList[i].UniqueID] {
			continue
		}
		classes = append(classes, Classification{
			UniqueID: remoteList[i].UniqueID,
			Status:   StatusCloudOnly,
			Remote:   &remoteList[i],
		})
	}

	slices.SortFunc(classes, func(a, b Classification) int {
		return strings.Compare(a.UniqueID, b.UniqueID)
	})
	return classes
}
