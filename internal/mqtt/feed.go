// Package mqtt merges server-pushed entity changes into the resource stores.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"routemaster/internal/domain"
	"routemaster/internal/store"

	"go.uber.org/zap"
)

const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Change one pushed entity change. ProjectID may be omitted when the topic
// carries it (routemaster/projects/{projectId}/changes).
type Change struct {
	Entity    string          `json:"entity"`
	Op        string          `json:"op"`
	ProjectID string          `json:"projectId"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
}

var errMalformed = errors.New("malformed change")

// Subscriber is the part of *Client the feed needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// ChangeFeed subscribes to the change topic and applies every message to the
// by-id caches and loaded lists of the matching store.
type ChangeFeed struct {
	sub    Subscriber
	topic  string
	qos    byte
	stores *store.Stores
	logger *zap.Logger
}

func NewChangeFeed(sub Subscriber, topic string, qos byte, stores *store.Stores, logger *zap.Logger) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeed{
		sub:    sub,
		topic:  topic,
		qos:    qos,
		stores: stores,
		logger: logger.With(zap.String("component", "change_feed")),
	}
}

// Start subscribes and blocks until ctx is done.
func (f *ChangeFeed) Start(ctx context.Context) error {
	if err := f.sub.Subscribe(f.topic, f.qos, f.HandleMessage); err != nil {
		return fmt.Errorf("start change feed: %w", err)
	}
	f.logger.Info("Change feed started", zap.String("topic", f.topic))
	<-ctx.Done()
	return nil
}

func (f *ChangeFeed) Stop() {
	if err := f.sub.Unsubscribe(f.topic); err != nil {
		f.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	f.logger.Info("Change feed stopped")
}

// HandleMessage applies one payload. Malformed messages are logged and
// skipped; the returned error only reports what was skipped.
func (f *ChangeFeed) HandleMessage(topic string, payload []byte) error {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		f.logger.Warn("Skipping undecodable change", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	if c.ProjectID == "" {
		c.ProjectID = projectFromTopic(topic)
	}
	replaced, err := f.apply(c)
	if err != nil {
		f.logger.Warn("Skipping change",
			zap.String("topic", topic),
			zap.String("entity", c.Entity),
			zap.String("op", c.Op),
			zap.String("id", c.ID),
			zap.Error(err),
		)
		return err
	}
	f.logger.Debug("Applied change",
		zap.String("entity", c.Entity),
		zap.String("op", c.Op),
		zap.String("project_id", c.ProjectID),
		zap.String("id", c.ID),
		zap.Bool("replaced", replaced),
	)
	return nil
}

func projectFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "projects" {
			return parts[i+1]
		}
	}
	return ""
}

// apply merges c into its store and reports whether a cached entity was
// replaced or dropped.
func (f *ChangeFeed) apply(c Change) (bool, error) {
	switch c.Op {
	case OpUpsert, OpDelete:
	default:
		return false, fmt.Errorf("%w: unknown op %q", errMalformed, c.Op)
	}
	if c.Entity != "project" && c.ProjectID == "" {
		return false, fmt.Errorf("%w: %s change without project", errMalformed, c.Entity)
	}

	if c.Op == OpDelete {
		if c.ID == "" {
			return false, fmt.Errorf("%w: delete without id", errMalformed)
		}
		known := f.cached(c.Entity, c.ID)
		switch c.Entity {
		case "contact":
			f.stores.Contacts.ApplyRemoteContactDeletion(c.ProjectID, c.ID)
		case "job":
			f.stores.Jobs.ApplyRemoteJobDeletion(c.ProjectID, c.ID)
		case "vehicle":
			f.stores.Vehicles.ApplyRemoteVehicleDeletion(c.ProjectID, c.ID)
		case "project":
			f.stores.Projects.ApplyRemoteProjectDeletion(c.ID)
		case "route":
			f.stores.Routes.ApplyRemoteRouteDeletion(c.ProjectID, c.ID)
		default:
			return false, fmt.Errorf("%w: unknown entity %q", errMalformed, c.Entity)
		}
		return known, nil
	}

	switch c.Entity {
	case "contact":
		v, err := decode[domain.Contact](c, func(v *domain.Contact) *string { return &v.ID })
		if err != nil {
			return false, err
		}
		_, known := f.stores.Contacts.CachedContact(v.ID)
		f.stores.Contacts.ApplyRemoteContact(c.ProjectID, v)
		return known, nil
	case "job":
		v, err := decode[domain.Job](c, func(v *domain.Job) *string { return &v.ID })
		if err != nil {
			return false, err
		}
		_, known := f.stores.Jobs.CachedJob(v.ID)
		f.stores.Jobs.ApplyRemoteJob(c.ProjectID, v)
		return known, nil
	case "vehicle":
		v, err := decode[domain.Vehicle](c, func(v *domain.Vehicle) *string { return &v.ID })
		if err != nil {
			return false, err
		}
		_, known := f.stores.Vehicles.CachedVehicle(v.ID)
		f.stores.Vehicles.ApplyRemoteVehicle(c.ProjectID, v)
		return known, nil
	case "project":
		v, err := decode[domain.Project](c, func(v *domain.Project) *string { return &v.ID })
		if err != nil {
			return false, err
		}
		_, known := f.stores.Projects.CachedProject(v.ID)
		f.stores.Projects.ApplyRemoteProject(v)
		return known, nil
	case "route":
		v, err := decode[domain.Route](c, func(v *domain.Route) *string { return &v.ID })
		if err != nil {
			return false, err
		}
		_, known := f.stores.Routes.CachedRoute(v.ID)
		f.stores.Routes.ApplyRemoteRoute(c.ProjectID, v)
		return known, nil
	default:
		return false, fmt.Errorf("%w: unknown entity %q", errMalformed, c.Entity)
	}
}

func (f *ChangeFeed) cached(entity, id string) bool {
	var ok bool
	switch entity {
	case "contact":
		_, ok = f.stores.Contacts.CachedContact(id)
	case "job":
		_, ok = f.stores.Jobs.CachedJob(id)
	case "vehicle":
		_, ok = f.stores.Vehicles.CachedVehicle(id)
	case "project":
		_, ok = f.stores.Projects.CachedProject(id)
	case "route":
		_, ok = f.stores.Routes.CachedRoute(id)
	}
	return ok
}

// decode reads c.Data into T; the message id fills a missing entity id.
func decode[T any](c Change, id func(*T) *string) (T, error) {
	var v T
	if len(c.Data) == 0 {
		return v, fmt.Errorf("%w: upsert without data", errMalformed)
	}
	if err := json.Unmarshal(c.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if p := id(&v); *p == "" {
		*p = c.ID
	}
	if *id(&v) == "" {
		return v, fmt.Errorf("%w: upsert without id", errMalformed)
	}
	return v, nil
}
