package core

import (
	"github.com/google/uuid"

	"pkt.systems/cellbook/schema"
)

func newTabID() schema.TabID {
	return schema.TabID(uuid.NewString())
}

func newCellID() schema.CellID {
	return schema.CellID(uuid.NewString())
}

func newSessionID() schema.SessionID {
	return schema.SessionID(uuid.NewString())
}
