package wsapi

import "github.com/google/uuid"

// envelope is decoded first to discover which concrete command a
// frame carries, mirroring the tagged-union JSON commands spec.md §5
// describes: one "cmd" discriminator field, camelCase payload fields.
type envelope struct {
	Cmd string `json:"cmd"`
}

type authenticateCmd struct {
	Password string `json:"password"`
}

type addCmd struct {
	Song     int64  `json:"song"`
	Singer   string `json:"singer"`
	Password string `json:"password,omitempty"`
}

type playCmd struct {
	ID uuid.UUID `json:"id"`
}

type removeAsAdminCmd struct {
	ID uuid.UUID `json:"id"`
}

type removeAsUserCmd struct {
	ID       uuid.UUID `json:"id"`
	Password string    `json:"password"`
}

type swapCmd struct {
	ID1 uuid.UUID `json:"id1"`
	ID2 uuid.UUID `json:"id2"`
}

type moveAfterCmd struct {
	ID    uuid.UUID `json:"id"`
	After uuid.UUID `json:"after"`
}

type moveTopCmd struct {
	ID uuid.UUID `json:"id"`
}

type reportBugCmd struct {
	Song int64  `json:"song"`
	Text string `json:"report"`
}

type suggestCmd struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}
