package dmstorage

// EnrollmentTokenSource is where the enrollment token was found. Sources are
// declared from the most to the least preferred.
type EnrollmentTokenSource int

const (
	EnrollmentTokenSourceNone EnrollmentTokenSource = iota
	EnrollmentTokenSourceCompanyPolicy
	EnrollmentTokenSourceLegacyPolicy
	EnrollmentTokenSourceOldLegacyPolicy
	EnrollmentTokenSourceRuntime
	EnrollmentTokenSourceInstall
)

func (s EnrollmentTokenSource) String() string {
	switch s {
	case EnrollmentTokenSourceCompanyPolicy:
		return "company_policy"
	case EnrollmentTokenSourceLegacyPolicy:
		return "legacy_policy"
	case EnrollmentTokenSourceOldLegacyPolicy:
		return "old_legacy_policy"
	case EnrollmentTokenSourceRuntime:
		return "runtime"
	case EnrollmentTokenSourceInstall:
		return "install"
	default:
		return "none"
	}
}

// DMTokenSource is where the device management token was found.
type DMTokenSource int

const (
	DMTokenSourceNone DMTokenSource = iota
	DMTokenSourceCompany
	DMTokenSourceLegacy
)

func (s DMTokenSource) String() string {
	switch s {
	case DMTokenSourceCompany:
		return "company"
	case DMTokenSourceLegacy:
		return "legacy"
	default:
		return "none"
	}
}

type deviceIDSource int

const (
	deviceIDSourceNone deviceIDSource = iota
	deviceIDSourceOS
)
