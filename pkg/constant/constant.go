package constant

const (
	// DefaultDirMode is the default file mode to apply to created directories.
	DefaultDirMode = 0o755
	// DefaultFileMode is the default file mode to apply to created files.
	DefaultFileMode = 0o600
	// DefaultWorldReadableFileMode is the default file mode to apply to files
	// that can be read by other processes, such as cached policy responses
	// consumed by the policy status accessor.
	DefaultWorldReadableFileMode = 0o644
	// MaxDMTokenLength is the largest device management token, in bytes, that
	// is accepted from the server or read back from storage.
	MaxDMTokenLength = 4096
	// PolicyResponsesDirName is the directory (in the agent root dir) holding
	// one subdirectory per cached policy type.
	PolicyResponsesDirName = "Policies"
	// PolicyResponseFileName is the name of the file inside a policy type
	// directory that holds the serialized policy fetch response.
	PolicyResponseFileName = "PolicyFetchResponse"
	// CachedPublicKeyFileName is the name of the file, sibling to the policy
	// type directories, that holds the response carrying the latest signing
	// key.
	CachedPublicKeyFileName = "CachedPublicKey"
	// BadgerDirName is the directory (in the agent root dir) of the badger
	// backed key-value store used where no system registry exists.
	BadgerDirName = "dmagent.db"
	// BoltFileName is the file (in the agent root dir) of the bolt backed
	// key-value store.
	BoltFileName = "dmagent.bolt"
	// LogFileName is the name of the rotating log file.
	LogFileName = "dmagent.log"
	// SilenceEnrollLogErrorEnvVar is an environment variable name for
	// disabling registration failure logs.
	SilenceEnrollLogErrorEnvVar = "DMAGENT_SILENCE_ENROLL_ERROR"
	// UnknownOSVersion is reported to the device management server when the
	// OS version cannot be determined.
	UnknownOSVersion = "0.0.0.0"
)
