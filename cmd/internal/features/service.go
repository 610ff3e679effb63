package features

import (
	"context"
	"log/slog"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/identity/ids"
	"tdp/cmd/internal/events"
)

// Service enforces who may read, change and assign features.
type Service struct {
	store  Store
	users  identity.Store
	events events.Publisher
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvents sets the publisher for assignment events.
func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs a Service.
func NewService(store Store, users identity.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, identity.OpError{Op: "features.NewService", Kind: identity.ErrInvalidInput, Msg: "nil store"}
	}
	if users == nil {
		return nil, identity.OpError{Op: "features.NewService", Kind: identity.ErrInvalidInput, Msg: "nil user store"}
	}
	s := &Service{
		store:  store,
		users:  users,
		events: events.Noop{},
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// IsAdmin reports whether userID is an active user holding AdminFeature right now.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !u.IsActive {
		return false, nil
	}
	return s.store.HasFeature(ctx, userID, AdminFeature)
}

func (s *Service) requireAdmin(ctx context.Context, op, actorID string) error {
	ok, err := s.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return identity.OpError{Op: op, Kind: identity.ErrForbidden}
	}
	return nil
}

// requireSelfOrAdmin lets a user act on their own assignments. Granting
// AdminFeature always takes an admin.
func (s *Service) requireSelfOrAdmin(ctx context.Context, op, actorID, userID string, f *Feature) error {
	if actorID == userID && (f == nil || f.Name != AdminFeature) {
		return nil
	}
	return s.requireAdmin(ctx, op, actorID)
}

// PermissionsForUser returns the names of the user's features, sorted.
func (s *Service) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	held, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(held))
	for i, f := range held {
		out[i] = f.Name
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]Feature, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Feature, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (Feature, error) {
	const op = "features.Create"

	if err := s.requireAdmin(ctx, op, actorID); err != nil {
		return Feature{}, err
	}
	name, desc, err := validateInput(op, in.Name, in.Description)
	if err != nil {
		return Feature{}, err
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Feature{}, err
	}
	f, err := s.store.Create(ctx, Feature{ID: id, Name: name, Description: desc, CreatedAt: now})
	if err != nil {
		return Feature{}, err
	}
	s.log.InfoContext(ctx, "features.create", "feature_id", f.ID, "name", f.Name, "actor", actorID)
	return f, nil
}

func (s *Service) Update(ctx context.Context, actorID, id string, in UpdateInput) (Feature, error) {
	const op = "features.Update"

	if err := s.requireAdmin(ctx, op, actorID); err != nil {
		return Feature{}, err
	}
	name, desc, err := validateInput(op, in.Name, in.Description)
	if err != nil {
		return Feature{}, err
	}
	f, err := s.store.Update(ctx, id, UpdateInput{Name: name, Description: desc})
	if err != nil {
		return Feature{}, err
	}
	s.log.InfoContext(ctx, "features.update", "feature_id", f.ID, "name", f.Name, "actor", actorID)
	return f, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	const op = "features.Delete"

	if err := s.requireAdmin(ctx, op, actorID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "features.delete", "feature_id", id, "actor", actorID)
	return nil
}

// ListForUser returns userID's features. Only the user or an admin may ask.
func (s *Service) ListForUser(ctx context.Context, actorID, userID string) ([]UserFeature, error) {
	const op = "features.ListForUser"

	if err := s.requireSelfOrAdmin(ctx, op, actorID, userID, nil); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListForUser(ctx, userID)
}

// Assign grants a feature. Authorization runs before any lookup so callers
// without rights learn nothing about which users exist.
func (s *Service) Assign(ctx context.Context, actorID, userID, featureID string) error {
	const op = "features.Assign"

	if err := s.requireSelfOrAdmin(ctx, op, actorID, userID, nil); err != nil {
		return err
	}
	f, err := s.lookupPair(ctx, userID, featureID)
	if err != nil {
		return err
	}
	if actorID == userID && f.Name == AdminFeature {
		if err := s.requireAdmin(ctx, op, actorID); err != nil {
			return err
		}
	}
	if err := s.store.Assign(ctx, userID, featureID, s.now()); err != nil {
		return err
	}
	s.publish(ctx, events.FeatureAssigned, userID, f, actorID)
	return nil
}

// Unassign removes a grant; a pair that was never assigned is NotFound.
func (s *Service) Unassign(ctx context.Context, actorID, userID, featureID string) error {
	const op = "features.Unassign"

	if err := s.requireSelfOrAdmin(ctx, op, actorID, userID, nil); err != nil {
		return err
	}
	f, err := s.lookupPair(ctx, userID, featureID)
	if err != nil {
		return err
	}
	if err := s.store.Unassign(ctx, userID, featureID); err != nil {
		return err
	}
	s.publish(ctx, events.FeatureRevoked, userID, f, actorID)
	return nil
}

func (s *Service) lookupPair(ctx context.Context, userID, featureID string) (Feature, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return Feature{}, err
	}
	return s.store.Get(ctx, featureID)
}

func (s *Service) publish(ctx context.Context, typ, userID string, f Feature, actorID string) {
	ev := events.Event{
		Type:       typ,
		UserID:     userID,
		OccurredAt: s.now(),
		Attributes: map[string]string{"featureId": f.ID, "feature": f.Name, "actor": actorID},
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "events.publish.fail", "type", typ, "err", err)
	}
}

func validateInput(op, name string, desc *string) (string, *string, error) {
	name = normalizeName(name)
	if name == "" {
		return "", nil, identity.ValidationError{Op: op, Field: "name", Msg: "required"}
	}
	if !validName(name) {
		return "", nil, identity.ValidationError{Op: op, Field: "name", Msg: "use lowercase letters, digits, '_', '-' or '.' (max 100)"}
	}
	desc = normalizeDescription(desc)
	if desc != nil && len([]rune(*desc)) > maxDescriptionLen {
		return "", nil, identity.ValidationError{Op: op, Field: "description", Msg: "too long"}
	}
	return name, desc, nil
}
