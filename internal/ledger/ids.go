package ledger

import "fmt"

// Identifier prefixes.
const (
	RecordIDPrefix           = "LAND"
	RegistrationNumberPrefix = "REG"
	CertificateIDPrefix      = "CERT"
)

// RegistrationNumber formats REG<year><seq>. The sequence is zero-padded to
// three digits and widens beyond 999 rather than wrapping.
func RegistrationNumber(year int, seq uint64) string {
	return fmt.Sprintf("%s%04d%03d", RegistrationNumberPrefix, year, seq)
}

// CertificateID formats CERT<year><seq> with the same padding rules.
func CertificateID(year int, seq uint64) string {
	return fmt.Sprintf("%s%04d%03d", CertificateIDPrefix, year, seq)
}

// RecordID formats LAND<seq>.
func RecordID(seq uint64) string {
	return fmt.Sprintf("%s%03d", RecordIDPrefix, seq)
}

// NextRegistrationNumber allocates from the current ledger size.
func NextRegistrationNumber(year, currentLedgerSize int) string {
	return RegistrationNumber(year, uint64(currentLedgerSize)+1)
}

// NextCertificateID allocates from the current certificate count.
func NextCertificateID(year, currentCertificateCount int) string {
	return CertificateID(year, uint64(currentCertificateCount)+1)
}
