package handlers

import (
	"testing"

	"github.com/aris-project/aris/internal/chat"
)

// The cached session list is stored whole; paging must slice it the same
// way regardless of which page size the first caller used.
func TestPageOf(t *testing.T) {
	all := make([]chat.SessionSummary, 7)
	for i := range all {
		all[i].SessionID = uint64(i + 1)
	}

	page := pageOf(all, 0, 3)
	if len(page) != 3 || page[0].SessionID != 1 {
		t.Fatalf("page 0 = %+v", page)
	}
	page = pageOf(all, 2, 3)
	if len(page) != 1 || page[0].SessionID != 7 {
		t.Fatalf("last page = %+v", page)
	}
	if page = pageOf(all, 5, 3); len(page) != 0 {
		t.Fatalf("past-the-end page = %+v", page)
	}
	// A different page size over the same list.
	page = pageOf(all, 1, 5)
	if len(page) != 2 || page[0].SessionID != 6 {
		t.Fatalf("page 1 size 5 = %+v", page)
	}
}
