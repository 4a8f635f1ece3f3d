package dmclient

import (
	"errors"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/dmerrors"
	"github.com/fleetdm/dmagent/pkg/dmstorage"
	"github.com/fleetdm/dmagent/pkg/logging"
	"github.com/rs/zerolog/log"
)

// RegistrationState is the registration status of the machine, derived from
// the tokens found on it.
type RegistrationState int

const (
	// NotManaged means there is neither a device management token nor an
	// enrollment token.
	NotManaged RegistrationState = iota
	// RegistrationPending means an enrollment token is configured but the
	// machine is not registered yet.
	RegistrationPending
	// Registered means a device management token is present.
	Registered
)

func (s RegistrationState) String() string {
	switch s {
	case Registered:
		return "registered"
	case RegistrationPending:
		return "registration_pending"
	default:
		return "not_managed"
	}
}

// RegisterResult is the outcome of a RegisterIfNeeded call that did not fail.
type RegisterResult int

const (
	// RegisterResultFailed is returned along with an error.
	RegisterResultFailed RegisterResult = iota
	// RegisterResultRegistered means the machine was registered by this call.
	RegisterResultRegistered
	// RegisterResultAlreadyRegistered means a device management token was
	// already present. Nothing was sent.
	RegisterResultAlreadyRegistered
	// RegisterResultNothingToDo means no enrollment token is configured.
	// Nothing was sent.
	RegisterResultNothingToDo
)

func (r RegisterResult) String() string {
	switch r {
	case RegisterResultRegistered:
		return "registered"
	case RegisterResultAlreadyRegistered:
		return "already_registered"
	case RegisterResultNothingToDo:
		return "nothing_to_do"
	default:
		return "failed"
	}
}

// TokenReader gives access to the resolved tokens.
type TokenReader interface {
	DMToken() string
	EnrollmentToken() string
}

// TokenStore is the storage used by RegisterIfNeeded. *dmstorage.Storage
// implements it.
type TokenStore interface {
	TokenReader
	DeviceID() string
	StoreDMToken(token string) (dmstorage.StoreResult, error)
}

// Registrar exchanges an enrollment token for a device management token.
// *Client implements it.
type Registrar interface {
	Register(enrollmentToken, deviceID string) (string, error)
}

// GetRegistrationState returns the registration state of the machine.
func GetRegistrationState(tokens TokenReader) RegistrationState {
	if tokens.DMToken() != "" {
		return Registered
	}
	if tokens.EnrollmentToken() == "" {
		return NotManaged
	}
	return RegistrationPending
}

// RegisterIfNeeded registers the machine when an enrollment token is
// configured and no device management token is present yet, and stores the
// token issued by the server.
//
// If the token cannot be stored, the registration is lost and the next call
// registers again.
func RegisterIfNeeded(storage TokenStore, registrar Registrar) (RegisterResult, error) {
	if storage.DMToken() != "" {
		log.Debug().Msg("device is already registered")
		return RegisterResultAlreadyRegistered, nil
	}

	enrollmentToken := storage.EnrollmentToken()
	if enrollmentToken == "" {
		log.Debug().Msg("no enrollment token found")
		return RegisterResultNothingToDo, nil
	}

	deviceID := storage.DeviceID()
	if deviceID == "" {
		err := &dmerrors.ValidationError{Op: "register", Err: errors.New("device id not found")}
		log.Error().Err(err).Msg("cannot register")
		return RegisterResultFailed, err
	}

	dmToken, err := registrar.Register(enrollmentToken, deviceID)
	if err != nil {
		logging.LogErrIfEnvNotSet(constant.SilenceEnrollLogErrorEnvVar, err, "register device")
		return RegisterResultFailed, err
	}

	res, err := storage.StoreDMToken(dmToken)
	if err != nil {
		if !dmerrors.IsStorage(err) && !dmerrors.IsValidation(err) {
			err = &dmerrors.StorageError{Op: "register", Err: err}
		}
		log.Error().Err(err).Msg("store dm token")
		return RegisterResultFailed, err
	}
	if err := res.Err(); err != nil {
		log.Warn().Err(err).Msg("store dm token in secondary locations")
	}

	log.Info().Msg("registration complete")
	return RegisterResultRegistered, nil
}
