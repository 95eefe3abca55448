package castprotocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// ProtocolVersion is the version of the event protocol spoken by this
// sender. Messages from a different major version are rejected.
const ProtocolVersion = "v1.0.0"

const (
	kindField    = "kind"
	versionField = "protocolVersion"
)

// Registry maps a kind discriminator to the concrete RemoteEvent type it
// decodes into.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]reflect.Type
	frozen bool
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Freeze()
	return r
}()

// DefaultRegistry returns the process-wide, read-only registry holding the
// built-in event kinds.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry returns a writable registry seeded with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]reflect.Type)}
	for _, ev := range []RemoteEvent{
		&GetAccessToken{},
		&GetAccessTokenResponse{},
		&SetSoundFadeInDuration{},
		&SetSoundFadeOutDuration{},
		&EnableSoundPremiumSegments{},
		&SetSoundAudioBitrate{},
		&SetSoundVolume{},
		&PlaySound{},
		&PauseSound{},
		&StopSound{},
		&SoundStateChanged{},
		&GlobalUiUpdated{},
		&SoundUiUpdated{},
		&PresetNameUpdated{},
	} {
		if err := r.Register(ev.Kind(), ev); err != nil {
			panic(err)
		}
	}
	return r
}

// Register binds kind to the struct type of sample.
func (r *Registry) Register(kind string, sample RemoteEvent) error {
	if kind == "" {
		return errors.New("register: empty kind")
	}

	t := reflect.TypeOf(sample)
	if t == nil {
		return errors.New("register: nil sample")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("register %s: %s is not a struct", kind, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "register %s", kind)
	}
	if _, ok := r.types[kind]; ok {
		return errors.Wrapf(ErrDuplicateKind, "register %s", kind)
	}
	r.types[kind] = t
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the struct type registered for kind.
func (r *Registry) Resolve(kind string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	return t, nil
}

// Kinds returns the number of registered kinds.
func (r *Registry) Kinds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Decode reads the kind discriminator of payload and decodes the rest of
// the object into the registered type. The result is a pointer to that
// type. Fields unknown to the type fail the decode.
func (r *Registry) Decode(payload []byte) (RemoteEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedEvent)
	}

	rawKind, ok := fields[kindField]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", ErrUnknownEventKind, kindField)
	}

	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, fmt.Errorf("%w: kind: %v", ErrMalformedEvent, err)
	}

	if rawVersion, ok := fields[versionField]; ok {
		var version string
		if err := json.Unmarshal(rawVersion, &version); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, versionField, err)
		}
		if err := checkProtocolVersion(version); err != nil {
			return nil, err
		}
	}

	t, err := r.Resolve(kind)
	if err != nil {
		return nil, err
	}

	delete(fields, kindField)
	delete(fields, versionField)
	if err := checkFieldNames(kind, t, fields); err != nil {
		return nil, err
	}
	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ptr := reflect.New(t)
	dec := json.NewDecoder(bytes.NewReader(rest))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind, err)
	}

	ev, ok := ptr.Interface().(RemoteEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not implement RemoteEvent", ErrMalformedEvent, t)
	}
	if v, ok := ev.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind, err)
		}
	}
	return ev, nil
}

// checkFieldNames rejects keys that only match a field of t when compared
// case-insensitively. encoding/json accepts those on its own.
func checkFieldNames(kind string, t reflect.Type, fields map[string]json.RawMessage) error {
	names := make(map[string]bool, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = true
	}

	for key := range fields {
		if !names[key] {
			return fmt.Errorf("%w: %s: unknown field %q", ErrMalformedEvent, kind, key)
		}
	}
	return nil
}

// Encode serializes ev with its kind and the protocol version. Events of
// unregistered kinds are refused.
func (r *Registry) Encode(ev RemoteEvent) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode: nil event")
	}
	if _, err := r.Resolve(ev.Kind()); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}

	kind, _ := json.Marshal(ev.Kind())
	version, _ := json.Marshal(ProtocolVersion)
	fields[kindField] = kind
	fields[versionField] = version

	return json.Marshal(fields)
}

// SendEvent encodes ev with r and sends it on namespace.
func SendEvent(s Session, namespace string, r *Registry, ev RemoteEvent) error {
	payload, err := r.Encode(ev)
	if err != nil {
		return err
	}
	return s.Send(namespace, RawPayload(payload))
}

// normalize adds a "v" prefix to the version string if it's missing.
// The semver package strictly requires the "v" prefix (e.g., "v1.2.3").
func normalize(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

func checkProtocolVersion(version string) error {
	norm := normalize(version)
	if !semver.IsValid(norm) {
		return fmt.Errorf("%w: invalid protocol version %q", ErrMalformedEvent, version)
	}
	if semver.Major(norm) != semver.Major(ProtocolVersion) {
		return fmt.Errorf("%w: got %s, want %s", ErrIncompatibleProtocol, version, semver.Major(ProtocolVersion))
	}
	return nil
}
