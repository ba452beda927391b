package workflow

import (
	"fmt"
	"strings"
)

// CertificateNumber renders PREFIX-YYYY-NNNNNN. Sequences are allocated per
// (submission type, year), so the number is unique within a prefix as long
// as prefixes are unique across types.
func CertificateNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%06d", strings.ToUpper(prefix), year, seq)
}

// DefaultCertificatePrefix is used when a submission type has none configured.
func DefaultCertificatePrefix(kind Kind) string {
	switch kind {
	case KindPatent:
		return "PAT"
	case KindTrademark:
		return "TM"
	case KindCopyright:
		return "CR"
	case KindIndustrialDesign:
		return "ID"
	}
	return "IP"
}

// CertificatePrefixFor picks the configured prefix or the kind default.
func CertificatePrefixFor(t *SubmissionType) string {
	if t.CertificatePrefix != "" {
		return t.CertificatePrefix
	}
	return DefaultCertificatePrefix(t.Kind)
}
