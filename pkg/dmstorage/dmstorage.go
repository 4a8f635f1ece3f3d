// Package dmstorage resolves the enrollment token, the device management
// token and the device id from the local sources they can come from, and
// persists the device management token once registration succeeds.
//
// Resolved values are kept in memory for the lifetime of the Storage. A
// Storage is meant to be used by a single goroutine.
package dmstorage

import (
	"errors"
	"fmt"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/dmerrors"
	"github.com/fleetdm/dmagent/pkg/kvstore"
	"github.com/fleetdm/dmagent/pkg/sysinfo"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// Options configure a Storage.
type Options struct {
	// Store is the registry-like store the tokens live in. Required.
	Store kvstore.Store
	// Layout defaults to DefaultLayout.
	Layout *Layout
	// LegacyCompatibility enables reading the enrollment and device management
	// tokens from the browser's locations, and mirroring the device management
	// token there.
	LegacyCompatibility bool
	// RuntimeEnrollmentToken is the token given on the command line, if any.
	RuntimeEnrollmentToken string
	// DeviceID returns the machine identifier. Defaults to
	// sysinfo.MachineGUID.
	DeviceID func() (string, error)
}

// Storage holds the device management state of the machine.
type Storage struct {
	store               kvstore.Store
	layout              Layout
	legacyCompatibility bool
	runtimeToken        string
	loadDeviceID        func() (string, error)

	enrollmentToken *cachedValue[EnrollmentTokenSource]
	dmToken         *cachedValue[DMTokenSource]
	deviceID        *cachedValue[deviceIDSource]
}

// StoreResult reports the best-effort effects of a successful store.
type StoreResult struct {
	// Secondary holds the failures of best-effort writes, nil if there were
	// none.
	Secondary *multierror.Error
}

// Err returns the secondary failures as a single error, or nil.
func (r StoreResult) Err() error {
	return r.Secondary.ErrorOrNil()
}

// New returns a Storage reading from and writing to opts.Store.
func New(opts Options) (*Storage, error) {
	if opts.Store == nil {
		return nil, &dmerrors.ConfigurationError{Op: "create dm storage", Err: errors.New("no store configured")}
	}

	s := &Storage{
		store:               opts.Store,
		layout:              DefaultLayout,
		legacyCompatibility: opts.LegacyCompatibility,
		runtimeToken:        opts.RuntimeEnrollmentToken,
		loadDeviceID:        opts.DeviceID,
	}
	if opts.Layout != nil {
		s.layout = *opts.Layout
	}
	if s.loadDeviceID == nil {
		s.loadDeviceID = sysinfo.MachineGUID
	}

	etProbes := []probe[EnrollmentTokenSource]{
		{EnrollmentTokenSourceCompanyPolicy, s.stringLoader(s.layout.CompanyPolicyEnrollmentToken)},
	}
	if s.legacyCompatibility {
		etProbes = append(etProbes,
			probe[EnrollmentTokenSource]{EnrollmentTokenSourceLegacyPolicy, s.stringLoader(s.layout.LegacyPolicyEnrollmentToken)},
			probe[EnrollmentTokenSource]{EnrollmentTokenSourceOldLegacyPolicy, s.stringLoader(s.layout.OldLegacyPolicyEnrollmentToken)},
		)
	}
	etProbes = append(etProbes,
		probe[EnrollmentTokenSource]{EnrollmentTokenSourceRuntime, func() string { return s.runtimeToken }},
		probe[EnrollmentTokenSource]{EnrollmentTokenSourceInstall, s.stringLoader(s.layout.InstallEnrollmentToken)},
	)
	s.enrollmentToken = newCachedValue(EnrollmentTokenSourceNone, nil, etProbes...)

	dmProbes := []probe[DMTokenSource]{
		{DMTokenSourceCompany, s.dmTokenLoader(s.layout.CompanyDMToken)},
	}
	if s.legacyCompatibility {
		dmProbes = append(dmProbes, probe[DMTokenSource]{DMTokenSourceLegacy, s.dmTokenLoader(s.layout.LegacyDMToken)})
	}
	s.dmToken = newCachedValue(DMTokenSourceNone, validDMToken, dmProbes...)

	s.deviceID = newCachedValue(deviceIDSourceNone, nil, probe[deviceIDSource]{deviceIDSourceOS, s.readDeviceID})

	return s, nil
}

// EnrollmentToken returns the enrollment token of the most preferred source
// that has one, or "" if none does. Once found, the token does not change for
// the lifetime of s.
func (s *Storage) EnrollmentToken() string {
	token, source := s.enrollmentToken.get()
	if source != EnrollmentTokenSourceNone {
		log.Debug().Str("source", source.String()).Msg("enrollment token resolved")
	}
	return token
}

// EnrollmentTokenSource returns where EnrollmentToken found the token.
func (s *Storage) EnrollmentTokenSource() EnrollmentTokenSource {
	_, source := s.enrollmentToken.get()
	return source
}

// DMToken returns the device management token, or "" if the machine is not
// registered.
func (s *Storage) DMToken() string {
	token, _ := s.dmToken.get()
	return token
}

// DMTokenSource returns where DMToken found the token.
func (s *Storage) DMTokenSource() DMTokenSource {
	_, source := s.dmToken.get()
	return source
}

// StoreDMToken writes token to the canonical location. In legacy
// compatibility mode the token is also mirrored to the legacy location; a
// failure to do so is reported in the result, not as an error.
func (s *Storage) StoreDMToken(token string) (StoreResult, error) {
	var res StoreResult
	if !validDMToken(token) {
		return res, &dmerrors.ValidationError{
			Op:  "store dm token",
			Err: fmt.Errorf("token length %d out of range [1, %d]", len(token), constant.MaxDMTokenLength),
		}
	}

	loc := s.layout.CompanyDMToken
	if err := s.store.Set(loc.Path, loc.Name, kvstore.BinaryValue([]byte(token))); err != nil {
		return res, &dmerrors.StorageError{Op: "store dm token", Err: err}
	}
	s.dmToken.set(token, DMTokenSourceCompany)

	if s.legacyCompatibility {
		loc := s.layout.LegacyDMToken
		if err := s.store.Set(loc.Path, loc.Name, kvstore.BinaryValue([]byte(token))); err != nil {
			res.Secondary = multierror.Append(res.Secondary, fmt.Errorf("mirror dm token to %s: %w", loc.Path, err))
		}
	}
	return res, nil
}

// DeviceID returns the machine identifier, or "" if it cannot be read. It is
// not persisted by this package.
func (s *Storage) DeviceID() string {
	id, _ := s.deviceID.get()
	return id
}

// InvalidateDeviceID drops the in-memory device id so the next DeviceID call
// reads it again.
func (s *Storage) InvalidateDeviceID() {
	s.deviceID.invalidate()
}

// StoreRuntimeEnrollmentTokenForInstall keeps the enrollment token given at
// runtime in the install location so later runs find it. stored is false,
// with a nil error, when the token did not come from the runtime source.
func (s *Storage) StoreRuntimeEnrollmentTokenForInstall() (stored bool, err error) {
	token, source := s.enrollmentToken.get()
	if source != EnrollmentTokenSourceRuntime {
		return false, nil
	}
	loc := s.layout.InstallEnrollmentToken
	if err := s.store.Set(loc.Path, loc.Name, kvstore.StringValue(token)); err != nil {
		return false, &dmerrors.StorageError{Op: "store runtime enrollment token", Err: err}
	}
	return true, nil
}

func (s *Storage) stringLoader(loc Location) func() string {
	return func() string {
		v, err := kvstore.GetString(s.store, loc.Path, loc.Name)
		if err != nil {
			if !errors.Is(err, kvstore.ErrNotExist) {
				log.Debug().Err(err).Str("path", loc.Path).Str("name", loc.Name).Msg("read enrollment token")
			}
			return ""
		}
		return v
	}
}

func (s *Storage) dmTokenLoader(loc Location) func() string {
	return func() string {
		v, err := s.store.Get(loc.Path, loc.Name)
		switch {
		case errors.Is(err, kvstore.ErrNotExist):
			return ""
		case err != nil:
			log.Debug().Err(err).Str("path", loc.Path).Msg("read dm token")
			return ""
		case v.Type != kvstore.TypeBinary:
			log.Debug().Str("path", loc.Path).Stringer("type", v.Type).Msg("ignoring dm token of unexpected type")
			return ""
		}
		return string(v.Data)
	}
}

func (s *Storage) readDeviceID() string {
	id, err := s.loadDeviceID()
	if err != nil {
		log.Debug().Err(err).Msg("read device id")
		return ""
	}
	return id
}

func validDMToken(token string) bool {
	return len(token) > 0 && len(token) <= constant.MaxDMTokenLength
}
