package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"routemaster/internal/domain"
	"routemaster/internal/export"
	"routemaster/internal/mqtt"
	"routemaster/internal/observable"
	"routemaster/internal/service"
	"routemaster/internal/store"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"
)

// exportPageSize entries fetched per request while paging for an export
const exportPageSize = 100

func listProjects(ctx context.Context, a *app) error {
	result, err := a.stores.Projects.GetAllProjectsOfUser(ctx)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func listContacts(ctx context.Context, a *app, opts docopt.Opts) error {
	page, err := intOpt(opts, "--page", 0)
	if err != nil {
		return err
	}
	pageSize, err := intOpt(opts, "--page_size", 0)
	if err != nil {
		return err
	}
	result, err := a.stores.Contacts.GetAllContactsOfProject(ctx, str(opts, "<project_id>"), store.ContactsFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   str(opts, "--search"),
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func showContact(ctx context.Context, a *app, opts docopt.Opts) error {
	contact, err := a.stores.Contacts.GetContactById(ctx, str(opts, "<project_id>"), str(opts, "<contact_id>"))
	if err != nil {
		return err
	}
	return printJSON(contact)
}

func lookupContacts(ctx context.Context, a *app, opts docopt.Opts) error {
	result, err := a.stores.Contacts.LookupContacts(ctx, str(opts, "<project_id>"), str(opts, "<search>"), listOpt(opts, "--fields"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func listJobs(ctx context.Context, a *app, opts docopt.Opts) error {
	filter, err := jobsFilter(opts)
	if err != nil {
		return err
	}
	if filter.Page, err = intOpt(opts, "--page", 0); err != nil {
		return err
	}
	if filter.PageSize, err = intOpt(opts, "--page_size", 0); err != nil {
		return err
	}
	result, err := a.stores.Jobs.GetAllJobs(ctx, str(opts, "<project_id>"), filter)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func listVehicles(ctx context.Context, a *app, opts docopt.Opts) error {
	result, err := a.stores.Vehicles.GetAllVehiclesOfProject(ctx, str(opts, "<project_id>"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func listRoutes(ctx context.Context, a *app, opts docopt.Opts) error {
	from, err := dateOpt(opts, "--from_date")
	if err != nil {
		return err
	}
	to, err := dateOpt(opts, "--to_date")
	if err != nil {
		return err
	}
	filter := store.RoutesFilter{FromDate: from, ToDate: to}
	for _, s := range listOpt(opts, "--states") {
		filter.States = append(filter.States, domain.RouteState(s))
	}
	result, err := a.stores.Routes.GetAllRoutes(ctx, str(opts, "<project_id>"), filter)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func searchPlaces(ctx context.Context, a *app, opts docopt.Opts) error {
	results, err := a.places.SearchPlaces(ctx, str(opts, "<query>"))
	if err != nil {
		return err
	}
	return printJSON(results)
}

func placeDetails(ctx context.Context, a *app, opts docopt.Opts) error {
	details, err := a.places.GetPlaceDetails(ctx, str(opts, "<place_id>"))
	if err != nil {
		return err
	}
	return printJSON(struct {
		Details domain.PlaceDetailsResult `json:"details"`
		Address domain.Address            `json:"address"`
	}{details, details.ToAddress()})
}

func exportContacts(ctx context.Context, a *app, opts docopt.Opts) error {
	projectID := str(opts, "<project_id>")
	var contacts []domain.Contact
	for page := store.DefaultContactsPage; ; page++ {
		result, err := a.stores.Contacts.GetAllContactsOfProject(ctx, projectID, store.ContactsFilter{Page: page, PageSize: exportPageSize})
		if err != nil {
			return err
		}
		contacts = append(contacts, result.Contacts...)
		if len(result.Contacts) == 0 || len(contacts) >= result.MatchingContactsCount {
			break
		}
	}
	data, err := export.ContactsWorkbook(contacts)
	if err != nil {
		return err
	}
	return writeExport(str(opts, "--out"), data, len(contacts))
}

func exportJobs(ctx context.Context, a *app, opts docopt.Opts) error {
	filter, err := jobsFilter(opts)
	if err != nil {
		return err
	}
	filter.PageSize = exportPageSize

	projectID := str(opts, "<project_id>")
	var jobs []domain.Job
	for filter.Page = store.DefaultJobsPage; ; filter.Page++ {
		result, err := a.stores.Jobs.GetAllJobs(ctx, projectID, filter)
		if err != nil {
			return err
		}
		jobs = append(jobs, result.Jobs...)
		if len(result.Jobs) == 0 || len(jobs) >= result.TotalCount {
			break
		}
	}
	data, err := export.JobsWorkbook(jobs)
	if err != nil {
		return err
	}
	return writeExport(str(opts, "--out"), data, len(jobs))
}

func writeExport(path string, data []byte, rows int) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	Err.Printf("Wrote %d rows to %s", rows, path)
	return nil
}

// watch keeps the project's caches live until SIGINT or SIGTERM, printing
// every change the stores deliver.
func watch(a *app, opts docopt.Opts) error {
	projectID := str(opts, "<project_id>")
	log := a.logger.With(zap.String("project_id", projectID))

	server := service.NewServer(a.cfg.Metrics.Addr, service.NewHandler(a.registry, a.monitor), log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(a.cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connect change feed: %w", err)
		}
		defer client.Disconnect()
		feed := mqtt.NewChangeFeed(client, a.cfg.MQTT.Topic, a.cfg.MQTT.QoS, a.stores, log)
		go func() {
			if err := feed.Start(ctx); err != nil {
				log.Error("Change feed stopped", zap.Error(err))
			}
		}()
		defer feed.Stop()
	}

	onErr := func(what string) func(error) {
		return func(err error) {
			Err.Printf("%s: %s", what, err)
		}
	}
	subs := []observable.Subscription{
		a.stores.Contacts.WatchContactsPage(projectID, store.ContactsFilter{}, func(r domain.GetAllContactsResult) {
			Out.Printf("contacts: %d of %d", len(r.Contacts), r.MatchingContactsCount)
		}, onErr("contacts")),
		a.stores.Jobs.WatchJobs(projectID, store.JobsFilter{}, func(r domain.GetAllJobsResult) {
			Out.Printf("jobs: %d of %d", len(r.Jobs), r.TotalCount)
		}, onErr("jobs")),
		a.stores.Vehicles.WatchVehicles(projectID, func(r domain.GetAllVehiclesResult) {
			Out.Printf("vehicles: %d", len(r.Vehicles))
		}, onErr("vehicles")),
		a.stores.Routes.WatchRoutes(projectID, store.RoutesFilter{}, func(r domain.GetAllRoutesResult) {
			Out.Printf("routes: %d", len(r.Routes))
		}, onErr("routes")),
	}
	if vehicleID := str(opts, "--vehicle"); vehicleID != "" {
		subs = append(subs, a.stores.Vehicles.WatchVehicle(projectID, vehicleID, func(v domain.Vehicle, ok bool) {
			if ok {
				Out.Printf("vehicle %s: %s %s", v.ID, v.Alias, v.LicencePlate)
			}
		}, onErr("vehicle")))
	}
	if routeID := str(opts, "--route"); routeID != "" {
		subs = append(subs, a.stores.Routes.WatchRoute(routeID, func(r domain.Route, ok bool) {
			if ok {
				Out.Printf("route %s: %s, %d jobs", r.ID, r.State, len(r.Jobs))
			} else {
				Out.Printf("route %s: not loaded", routeID)
			}
		}, onErr("route")))
	}
	log.Info("Watching project", zap.String("metrics_addr", a.cfg.Metrics.Addr), zap.Bool("change_feed", a.cfg.MQTT.Enabled))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stop metrics server: %w", err)
	}
	return nil
}
