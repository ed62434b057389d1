package store

import (
	"context"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/observable"

	"go.uber.org/zap"
)

// VehiclesStore caches each project's fleet and single vehicles.
type VehiclesStore struct {
	base
	lists *queryCache[string, domain.GetAllVehiclesResult]
	byID  *entityCache[domain.Vehicle]
}

// NewVehiclesStore creates an empty vehicles store on client.
func NewVehiclesStore(client Backend, opts Options) *VehiclesStore {
	return &VehiclesStore{
		base: newBase(client, opts, "vehicles"),
		lists: newQueryCache[string]("vehicles.lists", func() domain.GetAllVehiclesResult {
			return domain.GetAllVehiclesResult{Vehicles: []domain.Vehicle{}}
		}, opts.Metrics),
		byID: newEntityCache("vehicles.byId", idOfVehicle, opts.Metrics),
	}
}

func idOfVehicle(v domain.Vehicle) string { return v.ID }

// GetAllVehiclesOfProject returns the project's fleet, fetching it at most once.
func (s *VehiclesStore) GetAllVehiclesOfProject(ctx context.Context, projectID string) (domain.GetAllVehiclesResult, error) {
	return s.lists.load(ctx, projectID, s.fetchList(projectID))
}

// RefreshVehicles re-fetches the fleet.
func (s *VehiclesStore) RefreshVehicles(ctx context.Context, projectID string) (domain.GetAllVehiclesResult, error) {
	return s.lists.refresh(ctx, projectID, s.fetchList(projectID))
}

// WatchVehicles observes the fleet and loads it on first subscription.
func (s *VehiclesStore) WatchVehicles(projectID string, next func(domain.GetAllVehiclesResult), onErr func(error)) observable.Subscription {
	sub, empty := s.lists.watch(projectID, next, onErr)
	s.watchLoad("vehicles.list", empty, func(ctx context.Context) error {
		_, err := s.GetAllVehiclesOfProject(ctx, projectID)
		return err
	})
	return sub
}

func (s *VehiclesStore) fetchList(projectID string) func(context.Context) (domain.GetAllVehiclesResult, error) {
	return func(ctx context.Context) (domain.GetAllVehiclesResult, error) {
		var out domain.GetAllVehiclesResult
		if err := s.client.Get(ctx, api.Path("/v1/projects/%s/vehicles", projectID), nil, &out); err != nil {
			return out, s.handleError(err, "get vehicles", "Failed to fetch vehicles.", zap.String("project_id", projectID))
		}
		if out.Vehicles == nil {
			out.Vehicles = []domain.Vehicle{}
		}
		s.byID.merge(out.Vehicles...)
		return out, nil
	}
}

// GetVehicleById returns a vehicle from the by-id cache or the backend.
func (s *VehiclesStore) GetVehicleById(ctx context.Context, projectID, vehicleID string) (domain.Vehicle, error) {
	return s.byID.load(ctx, vehicleID, func(ctx context.Context) (domain.Vehicle, error) {
		var out domain.GetVehicleByIDResult
		err := s.client.Get(ctx, api.Path("/v1/projects/%s/vehicles/%s", projectID, vehicleID), nil, &out)
		if err == nil && out.Vehicle == nil {
			err = ErrNotFound
		}
		if err != nil {
			return domain.Vehicle{}, s.handleError(err, "get vehicle", "Failed to fetch vehicle.",
				zap.String("project_id", projectID), zap.String("vehicle_id", vehicleID))
		}
		return *out.Vehicle, nil
	})
}

// WatchVehicle observes one vehicle and loads it when it is not cached.
func (s *VehiclesStore) WatchVehicle(projectID, vehicleID string, next func(domain.Vehicle, bool), onErr func(error)) observable.Subscription {
	sub := s.byID.watch(vehicleID, next, onErr)
	_, cached := s.byID.get(vehicleID)
	s.watchLoad("vehicles.vehicle", !cached, func(ctx context.Context) error {
		_, err := s.GetVehicleById(ctx, projectID, vehicleID)
		return err
	})
	return sub
}

// CachedVehicle reads the by-id cache only.
func (s *VehiclesStore) CachedVehicle(vehicleID string) (domain.Vehicle, bool) {
	return s.byID.get(vehicleID)
}

// AddVehicleToProject creates a vehicle and appends it to the cached fleet.
func (s *VehiclesStore) AddVehicleToProject(ctx context.Context, projectID string, req domain.AddVehicleRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var id string
	if err := s.client.Post(ctx, api.Path("/v1/projects/%s/vehicles", projectID), req, &id); err != nil {
		return "", s.handleError(err, "add vehicle", "Failed to add vehicle.", zap.String("project_id", projectID))
	}

	vehicle := req.ToVehicle(id)
	s.byID.put(vehicle)
	s.lists.patch(func(k string) bool { return k == projectID },
		func(_ string, v domain.GetAllVehiclesResult) (domain.GetAllVehiclesResult, bool) {
			vehicles := append(append(make([]domain.Vehicle, 0, len(v.Vehicles)+1), v.Vehicles...), vehicle)
			return domain.GetAllVehiclesResult{Vehicles: vehicles}, true
		})
	s.notifySuccess("Vehicle added successfully!")
	return id, nil
}

// UpdateVehicle shows patch immediately and rolls back to the exact previous
// vehicle if the backend rejects it.
func (s *VehiclesStore) UpdateVehicle(ctx context.Context, projectID, vehicleID string, patch domain.VehiclePatch) error {
	err := optimisticUpdate(s.byID, vehicleID, patch.Apply, func() error {
		return s.client.Put(ctx, api.Path("/v1/projects/%s/vehicles/%s", projectID, vehicleID), patch, nil)
	})
	if err != nil {
		return s.handleError(err, "update vehicle", "Failed to update vehicle.",
			zap.String("project_id", projectID), zap.String("vehicle_id", vehicleID))
	}
	s.replaceInList(projectID, vehicleID, patch.Apply)
	s.notifySuccess("Vehicle updated successfully!")
	return nil
}

// DeleteVehicleById removes the vehicle optimistically; the fleet list is
// patched once the backend confirms.
func (s *VehiclesStore) DeleteVehicleById(ctx context.Context, projectID, vehicleID string) error {
	err := optimisticRemove(s.byID, vehicleID, func() error {
		return s.client.Delete(ctx, api.Path("/v1/projects/%s/vehicles/%s", projectID, vehicleID), nil, nil)
	})
	if err != nil {
		return s.handleError(err, "delete vehicle", "Failed to delete vehicle.",
			zap.String("project_id", projectID), zap.String("vehicle_id", vehicleID))
	}
	s.removeFromList(projectID, vehicleID)
	s.notifySuccess("Vehicle deleted successfully!")
	return nil
}

// ApplyRemoteVehicle merges a vehicle changed elsewhere into the caches.
func (s *VehiclesStore) ApplyRemoteVehicle(projectID string, v domain.Vehicle) {
	s.byID.put(v)
	if s.replaceInList(projectID, v.ID, func(domain.Vehicle) domain.Vehicle { return v }) == 0 {
		s.lists.patch(func(k string) bool { return k == projectID },
			func(_ string, list domain.GetAllVehiclesResult) (domain.GetAllVehiclesResult, bool) {
				return domain.GetAllVehiclesResult{Vehicles: append(append([]domain.Vehicle(nil), list.Vehicles...), v)}, true
			})
	}
}

// ApplyRemoteVehicleDeletion forgets a vehicle deleted elsewhere.
func (s *VehiclesStore) ApplyRemoteVehicleDeletion(projectID, vehicleID string) {
	s.byID.remove(vehicleID)
	s.removeFromList(projectID, vehicleID)
}

func (s *VehiclesStore) replaceInList(projectID, id string, fn func(domain.Vehicle) domain.Vehicle) int {
	return s.lists.patch(func(k string) bool { return k == projectID },
		func(_ string, v domain.GetAllVehiclesResult) (domain.GetAllVehiclesResult, bool) {
			i := indexOf(v.Vehicles, id, idOfVehicle)
			if i < 0 {
				return v, false
			}
			vehicles := append([]domain.Vehicle(nil), v.Vehicles...)
			vehicles[i] = fn(vehicles[i])
			return domain.GetAllVehiclesResult{Vehicles: vehicles}, true
		})
}

func (s *VehiclesStore) removeFromList(projectID, id string) {
	s.lists.patch(func(k string) bool { return k == projectID },
		func(_ string, v domain.GetAllVehiclesResult) (domain.GetAllVehiclesResult, bool) {
			i := indexOf(v.Vehicles, id, idOfVehicle)
			if i < 0 {
				return v, false
			}
			return domain.GetAllVehiclesResult{Vehicles: without(v.Vehicles, i)}, true
		})
}

func (s *VehiclesStore) Close() { s.bg.Close() }
