package dmstorage

// Location is a value in the registry-like store.
type Location struct {
	Path string
	Name string
}

// Layout lists the locations the storage reads and writes.
type Layout struct {
	// CompanyPolicyEnrollmentToken is set by the administrator through the
	// agent's own group policy.
	CompanyPolicyEnrollmentToken Location
	// LegacyPolicyEnrollmentToken and OldLegacyPolicyEnrollmentToken are set
	// through the browser's group policy. They are only read in legacy
	// compatibility mode.
	LegacyPolicyEnrollmentToken    Location
	OldLegacyPolicyEnrollmentToken Location
	// InstallEnrollmentToken is where a runtime provided token is kept for
	// later runs.
	InstallEnrollmentToken Location

	// CompanyDMToken is the canonical device management token location.
	CompanyDMToken Location
	// LegacyDMToken is read, and mirrored to, in legacy compatibility mode.
	LegacyDMToken Location
}

const (
	enrollmentTokenValueName = "CloudManagementEnrollmentToken"
	dmTokenValueName         = "dmtoken"
)

// DefaultLayout is the layout used on a managed machine.
var DefaultLayout = Layout{
	CompanyPolicyEnrollmentToken: Location{
		Path: `SOFTWARE\Policies\Google\Update`,
		Name: enrollmentTokenValueName,
	},
	LegacyPolicyEnrollmentToken: Location{
		Path: `SOFTWARE\Policies\Google\Chrome`,
		Name: enrollmentTokenValueName,
	},
	OldLegacyPolicyEnrollmentToken: Location{
		Path: `SOFTWARE\Policies\Google\Chrome`,
		Name: "MachineLevelUserCloudPolicyEnrollmentToken",
	},
	InstallEnrollmentToken: Location{
		Path: `SOFTWARE\Google\Update\ClientState\{430FD4D0-B729-4F61-AA34-91526481799D}`,
		Name: enrollmentTokenValueName,
	},
	CompanyDMToken: Location{
		Path: `SOFTWARE\Google\Enrollment`,
		Name: dmTokenValueName,
	},
	LegacyDMToken: Location{
		Path: `SOFTWARE\Google\Chrome\Enrollment`,
		Name: dmTokenValueName,
	},
}
