// Package policystore persists the policy fetch responses received from the
// device management server, one directory per policy type, together with the
// response that carried the current signing key.
//
// A policy file is replaced atomically: readers see either the previous or
// the new response, never a partial one.
package policystore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/dmerrors"
	"github.com/fleetdm/dmagent/pkg/dmmessages"
	"github.com/fleetdm/dmagent/pkg/secure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// maxEncodedPolicyTypeLen bounds the length of a policy type directory
	// name. Longer encodings are replaced by a hash.
	maxEncodedPolicyTypeLen = 128
	hashedPolicyTypePrefix  = "sha256="
)

// PolicyResponses is the result of a policy fetch: serialized
// PolicyFetchResponse messages keyed by policy type.
type PolicyResponses struct {
	Responses map[string][]byte
	// HasNewPublicKey is set when the responses carry a new signing key. All
	// responses then carry the same key.
	HasNewPublicKey bool
}

// WriteFileFunc writes data to name, replacing any previous content.
type WriteFileFunc func(name string, data []byte, perm os.FileMode) error

// Option configures a Store.
type Option func(*Store)

// WithWriteFile replaces the function used to write policy files.
func WithWriteFile(fn WriteFileFunc) Option {
	return func(s *Store) {
		s.writeFile = fn
	}
}

// Store is the on-disk policy cache rooted at a directory.
type Store struct {
	dir       string
	writeFile WriteFileFunc
	removeAll func(path string) error
}

// New returns a Store rooted at dir, creating the directory if needed. Entries
// whose deletion was deferred by a previous run are removed.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		writeFile: writeFileAtomic,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := secure.MkdirAll(dir, constant.DefaultDirMode); err != nil {
		return nil, &dmerrors.StorageError{Op: "create policy store", Err: errors.Wrap(err, "create policy responses dir")}
	}
	if err := sweepDeferred(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("remove deferred policy entries")
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// EncodePolicyType returns the directory name of policyType. It is the
// lowercase hex encoding of the type when that is at most 128 bytes long, and
// "sha256=" followed by the hex digest of the type otherwise. Names only use
// one letter case, so they stay distinct on case-insensitive filesystems.
func EncodePolicyType(policyType string) string {
	enc := hex.EncodeToString([]byte(policyType))
	if len(enc) <= maxEncodedPolicyTypeLen {
		return enc
	}
	sum := sha256.Sum256([]byte(policyType))
	return hashedPolicyTypePrefix + hex.EncodeToString(sum[:])
}

// PersistPolicies writes every response of responses, in policy type order,
// and removes the entries of policy types that are not part of responses. A
// response that cannot be written is logged and skipped; its previous
// content, if any, is kept.
//
// When responses carry a new public key, the first response written
// successfully is also saved as the cached public key file.
func (s *Store) PersistPolicies(responses PolicyResponses) error {
	policyTypes := make([]string, 0, len(responses.Responses))
	for policyType := range responses.Responses {
		policyTypes = append(policyTypes, policyType)
	}
	sort.Strings(policyTypes)

	keep := make(map[string]struct{}, len(policyTypes))
	keyWritten := false
	for _, policyType := range policyTypes {
		if policyType == "" {
			log.Warn().Msg("skipping policy response with empty policy type")
			continue
		}
		name := EncodePolicyType(policyType)
		keep[name] = struct{}{}

		policyDir := filepath.Join(s.dir, name)
		if err := secure.MkdirAll(policyDir, constant.DefaultDirMode); err != nil {
			log.Warn().Err(err).Str("policy_type", policyType).Msg("create policy dir")
			continue
		}

		data := responses.Responses[policyType]
		if err := s.writeFile(filepath.Join(policyDir, constant.PolicyResponseFileName), data, constant.DefaultWorldReadableFileMode); err != nil {
			log.Warn().Err(err).Str("policy_type", policyType).Msg("write policy response")
			continue
		}

		if responses.HasNewPublicKey && !keyWritten {
			if err := s.writeFile(s.publicKeyPath(), data, constant.DefaultWorldReadableFileMode); err != nil {
				log.Warn().Err(err).Str("policy_type", policyType).Msg("write cached public key")
				continue
			}
			keyWritten = true
		}
	}

	if err := s.deleteObsolete(keep); err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("delete obsolete policies")
	}
	return nil
}

func (s *Store) deleteObsolete(keep map[string]struct{}) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "list policy responses dir")
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == constant.CachedPublicKeyFileName {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}

		path := filepath.Join(s.dir, name)
		log.Debug().Str("path", path).Msg("deleting obsolete policy")
		if err := s.removeAll(path); err != nil {
			log.Info().Err(err).Str("path", path).Msg("delete failed, deferring")
			if err := deferDelete(s.dir, path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("defer delete")
			}
		}
	}
	return nil
}

func (s *Store) publicKeyPath() string {
	return filepath.Join(s.dir, constant.CachedPublicKeyFileName)
}

// ReadCachedPublicKey returns the signing key saved by PersistPolicies, or
// nil if there is none.
func (s *Store) ReadCachedPublicKey() (*dmmessages.CachedPublicKey, error) {
	b, err := os.ReadFile(s.publicKeyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &dmerrors.StorageError{Op: "read cached public key", Err: err}
	}

	key, err := dmmessages.ParseCachedPublicKey(b)
	if err != nil {
		return nil, &dmerrors.ValidationError{Op: "read cached public key", Err: err}
	}
	return key, nil
}

// ReadPolicy returns the cached response of policyType. The error satisfies
// errors.Is(err, os.ErrNotExist) when there is none.
func (s *Store) ReadPolicy(policyType string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, EncodePolicyType(policyType), constant.PolicyResponseFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "read policy %q", policyType)
	}
	return b, nil
}

// PolicyTypes returns the sorted policy types present in the store.
func (s *Store) PolicyTypes() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list policy responses dir")
	}

	var policyTypes []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		policyType, ok := s.decodePolicyType(entry.Name())
		if !ok {
			log.Debug().Str("name", entry.Name()).Msg("ignoring unknown policy dir")
			continue
		}
		policyTypes = append(policyTypes, policyType)
	}
	sort.Strings(policyTypes)
	return policyTypes, nil
}

// decodePolicyType reverses EncodePolicyType. Hashed names are resolved from
// the policy data of the cached response.
func (s *Store) decodePolicyType(name string) (string, bool) {
	if !strings.HasPrefix(name, hashedPolicyTypePrefix) {
		b, err := hex.DecodeString(name)
		if err != nil || len(b) == 0 {
			return "", false
		}
		return string(b), true
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, name, constant.PolicyResponseFileName))
	if err != nil {
		return "", false
	}
	resp, err := dmmessages.ParsePolicyFetchResponse(raw)
	if err != nil {
		return "", false
	}
	pd, err := dmmessages.ParsePolicyData(resp.PolicyData)
	if err != nil || EncodePolicyType(pd.PolicyType) != name {
		return "", false
	}
	return pd.PolicyType, true
}

// writeFileAtomic writes data to a temporary file in the directory of name,
// syncs it and renames it over name.
func writeFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp-")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err = f.Chmod(perm); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err = os.Rename(tmp, name); err != nil {
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}
