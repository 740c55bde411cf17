package vos

import (
	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// cookieFindUpdate looks up the cookie entry of container c. When epoch is
// above the committed value the entry is advanced; a missing entry is
// created only when create is set. It returns whether the entry existed
// and the committed epoch after the call.
func cookieFindUpdate(tx storage.Tx, c, cookie uuid.UUID, epoch domain.Epoch, create bool) (bool, domain.Epoch, error) {
	key := cookieKey(c, cookie)

	var rec cookieRecord
	found, err := getJSON(tx, key, &rec)
	if err != nil {
		return false, 0, err
	}
	if !found && !create {
		return false, 0, nil
	}
	if found && epoch <= rec.Committed {
		return true, rec.Committed, nil
	}

	rec.Committed = epoch
	if rec.Written < epoch {
		rec.Written = epoch
	}
	if err := putJSON(tx, key, rec); err != nil {
		return found, 0, err
	}
	return found, epoch, nil
}

// cookieNoteWrite records that cookie wrote at epoch.
func cookieNoteWrite(tx storage.Tx, c, cookie uuid.UUID, epoch domain.Epoch) error {
	key := cookieKey(c, cookie)

	var rec cookieRecord
	found, err := getJSON(tx, key, &rec)
	if err != nil {
		return err
	}
	if found && rec.Written >= epoch {
		return nil
	}
	rec.Written = epoch
	return putJSON(tx, key, rec)
}

// cookieLookup returns the cookie entry without modifying it.
func cookieLookup(r storage.Reader, c, cookie uuid.UUID) (cookieRecord, bool, error) {
	var rec cookieRecord
	found, err := getJSON(r, cookieKey(c, cookie), &rec)
	return rec, found, err
}
