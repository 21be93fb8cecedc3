package playlist

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a single PlaylistEntry: one singer's turn at one song.
// password is deliberately unexported so it never round-trips through
// JSON — neither to the persisted snapshot nor to subscribers. That
// keeps the wire snapshot and the on-disk snapshot byte-identical
// (P3), at the cost of a private entry's password not surviving a
// restart; see DESIGN.md.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	Song         int64     `json:"song"`
	Singer       string    `json:"singer"`
	PredictedEnd time.Time `json:"predictedEnd"`

	password string
}

// clone returns a value copy safe to hand to a caller holding no lock.
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
