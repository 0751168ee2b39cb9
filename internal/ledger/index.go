package ledger

import "strings"

// lookup maps search keys to ledger positions. Only the first position for
// a key is kept, so lookups return the earliest match in ledger order.
type lookup struct {
	byRegistration map[string]int
	byNationalID   map[string]int
}

func newLookup() *lookup {
	return &lookup{
		byRegistration: make(map[string]int),
		byNationalID:   make(map[string]int),
	}
}

func registrationKey(regNo string) string {
	return strings.ToLower(strings.TrimSpace(regNo))
}

func (l *lookup) add(pos int, r PropertyRecord) {
	if _, ok := l.byRegistration[registrationKey(r.RegistrationNumber)]; !ok {
		l.byRegistration[registrationKey(r.RegistrationNumber)] = pos
	}
	if _, ok := l.byNationalID[r.OwnerNationalID]; !ok {
		l.byNationalID[r.OwnerNationalID] = pos
	}
}

// remove drops the keys that point at pos. Used on rollback of the last append.
func (l *lookup) remove(pos int, r PropertyRecord) {
	if p, ok := l.byRegistration[registrationKey(r.RegistrationNumber)]; ok && p == pos {
		delete(l.byRegistration, registrationKey(r.RegistrationNumber))
	}
	if p, ok := l.byNationalID[r.OwnerNationalID]; ok && p == pos {
		delete(l.byNationalID, r.OwnerNationalID)
	}
}
