package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
)

// DefaultCapabilities are required when resolving an object for editing.
var DefaultCapabilities = []Capability{CapabilityView, CapabilityEdit}

// Resolver turns loosely typed identifiers into capability-checked objects of
// one engine's type.
type Resolver struct {
	def     Definition
	store   Store
	names   NameIndex
	checker CapabilityChecker
	logger  zerolog.Logger
}

// NewResolver creates a resolver for def.
func NewResolver(def Definition, store Store, names NameIndex, checker CapabilityChecker, logger zerolog.Logger) *Resolver {
	if checker == nil {
		checker = AllowAll{}
	}
	return &Resolver{
		def:     def,
		store:   store,
		names:   names,
		checker: checker,
		logger:  logger.With().Str("component", "resolver").Str("engine", def.EngineKey()).Logger(),
	}
}

// Resolve loads the object named by identifier: a numeric local id, a global
// id, or a short name. Missing objects and denied capabilities both fail with
// a not-found error.
func (r *Resolver) Resolve(ctx context.Context, viewer Viewer, identifier string, caps ...Capability) (Object, error) {
	if len(caps) == 0 {
		caps = DefaultCapabilities
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		rec, err := r.store.GetObjectByID(ctx, r.def.PHIDType(), id)
		if err != nil {
			return nil, r.lookupError(identifier, err)
		}
		return r.finish(ctx, viewer, identifier, rec, caps)
	}

	if IsPHID(identifier) {
		return r.resolvePHID(ctx, viewer, identifier, caps)
	}

	if r.names == nil {
		return nil, r.notFound(identifier, nil)
	}
	phid, err := r.names.ResolveName(ctx, identifier)
	if err != nil {
		return nil, r.lookupError(identifier, err)
	}
	if PHIDType(phid) != r.def.PHIDType() {
		return nil, NewTypeMismatchError(fmt.Sprintf(
			"%q is not a %s", identifier, r.def.ObjectName())).
			WithEngine(r.def.EngineKey()).WithObject(identifier)
	}
	r.logger.Debug().Str("name", identifier).Str("phid", phid).Msg("Resolved name")
	return r.resolvePHID(ctx, viewer, phid, caps)
}

func (r *Resolver) resolvePHID(ctx context.Context, viewer Viewer, phid string, caps []Capability) (Object, error) {
	if PHIDType(phid) != r.def.PHIDType() {
		return nil, r.notFound(phid, nil)
	}
	rec, err := r.store.GetObjectByPHID(ctx, phid)
	if err != nil {
		return nil, r.lookupError(phid, err)
	}
	return r.finish(ctx, viewer, phid, rec, caps)
}

func (r *Resolver) finish(ctx context.Context, viewer Viewer, identifier string, rec *ObjectRecord, caps []Capability) (Object, error) {
	if rec.Type != r.def.PHIDType() {
		return nil, r.notFound(identifier, nil)
	}
	obj, err := DecodeObject(r.def, rec)
	if err != nil {
		return nil, err
	}
	if loader, ok := r.def.(Loader); ok {
		if err := loader.LoadObject(ctx, obj); err != nil {
			return nil, fmt.Errorf("failed to load %s %s: %w", r.def.ObjectName(), rec.PHID, err)
		}
	}

	allowed, err := r.checker.Allows(ctx, viewer, SubjectOf(r.def, obj), caps...)
	if err != nil {
		return nil, fmt.Errorf("failed to check capabilities: %w", err)
	}
	if !allowed {
		r.logger.Debug().Str("object", rec.PHID).Str("viewer", viewer.PHID).Msg("Capability check denied")
		return nil, r.notFound(identifier, nil)
	}
	return obj, nil
}

func (r *Resolver) lookupError(identifier string, err error) error {
	if errors.Is(err, ErrRecordNotFound) || IsNotFound(err) {
		return r.notFound(identifier, err)
	}
	return fmt.Errorf("failed to resolve %q: %w", identifier, err)
}

func (r *Resolver) notFound(identifier string, err error) *Error {
	return NewNotFoundError(fmt.Sprintf("no %s %q", r.def.ObjectName(), identifier), err).
		WithEngine(r.def.EngineKey()).WithObject(identifier).WithCode(ErrCodeObjectNotFound)
}

// DecodeObject rebuilds a domain object from its stored record.
func DecodeObject(def Definition, rec *ObjectRecord) (Object, error) {
	obj := def.NewObject(Viewer{})
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, obj); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", def.ObjectName(), rec.PHID, err)
		}
	}
	h := obj.ObjectHeader()
	h.ID = rec.ID
	h.PHID = rec.PHID
	h.AuthorPHID = rec.AuthorPHID
	h.CreatedAt = rec.CreatedAt
	h.UpdatedAt = rec.UpdatedAt
	return obj, nil
}

// SubjectOf is the policy subject of an existing object.
func SubjectOf(def Definition, obj Object) PolicySubject {
	h := obj.ObjectHeader()
	return PolicySubject{
		EngineKey:  def.EngineKey(),
		ObjectType: def.PHIDType(),
		PHID:       h.PHID,
		AuthorPHID: h.AuthorPHID,
		Policies:   h.Policies,
	}
}

var monogramName = regexp.MustCompile(`^([A-Z]+)([1-9][0-9]*)$`)

// MonogramIndex resolves names such as "T42" through the registry's monograms.
type MonogramIndex struct {
	Registry *Registry
	Store    Store
}

// ResolveName implements NameIndex.
func (m MonogramIndex) ResolveName(ctx context.Context, name string) (string, error) {
	match := monogramName.FindStringSubmatch(name)
	if match == nil {
		return "", NewNotFoundError(fmt.Sprintf("%q is not a recognized name", name), nil)
	}
	def, ok := m.Registry.ByMonogram(match[1])
	if !ok {
		return "", NewNotFoundError(fmt.Sprintf("unknown monogram %q", match[1]), nil)
	}
	id, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return "", NewNotFoundError(fmt.Sprintf("%q is not a recognized name", name), err)
	}
	rec, err := m.Store.GetObjectByID(ctx, def.PHIDType(), id)
	if err != nil {
		return "", err
	}
	return rec.PHID, nil
}
