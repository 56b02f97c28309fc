package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/storage"
)

// FileTicketIssuer writes a plain-text boarding document for a paid
// reservation into the document store.  A real ticketing collaborator can
// replace it behind the TicketIssuer interface without touching the payment
// flow.
type FileTicketIssuer struct {
	files storage.FileStore
}

func NewFileTicketIssuer(files storage.FileStore) *FileTicketIssuer {
	return &FileTicketIssuer{files: files}
}

func (t *FileTicketIssuer) Issue(ctx context.Context, res *model.Reservation) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CARGO TICKET %s\n", res.ID)
	fmt.Fprintf(&b, "trip: %s\n", res.TripID)
	fmt.Fprintf(&b, "client: %s\n", res.ClientID)
	fmt.Fprintf(&b, "total: %s\n", res.TotalAmount)
	fmt.Fprintf(&b, "issued: %s\n", time.Now().UTC().Format(time.RFC3339))
	name := fmt.Sprintf("ticket_%s.txt", res.ID)
	return t.files.Save(ctx, "tickets", name, strings.NewReader(b.String()))
}
