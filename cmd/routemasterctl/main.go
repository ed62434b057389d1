package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"routemaster/internal/config"
	"routemaster/internal/domain"
	"routemaster/internal/store"

	"github.com/docopt/docopt-go"
)

const RouteMasterCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime)
}

func main() {
	usage := fmt.Sprintf(`Route master control.

Reads through the same caching stores the dashboard uses. Connection settings
come from the environment (API_BASE_URL, API_TOKEN, PLACES_API_KEY, ...).

Usage:
    routemasterctl projects
    routemasterctl contacts <project_id> [--page=<page>] [--page_size=<size>] [--search=<search>]
    routemasterctl contact <project_id> <contact_id>
    routemasterctl lookup <project_id> <search> [--fields=<fields>]
    routemasterctl jobs <project_id> [--page=<page>] [--page_size=<size>] [--on_date=<date>] [--states=<states>]
    routemasterctl vehicles <project_id>
    routemasterctl routes <project_id> [--from_date=<date>] [--to_date=<date>] [--states=<states>]
    routemasterctl places-search <query>
    routemasterctl place-details <place_id>
    routemasterctl export-contacts <project_id> --out=<file>
    routemasterctl export-jobs <project_id> --out=<file> [--on_date=<date>] [--states=<states>]
    routemasterctl watch <project_id> [--vehicle=<vehicle_id>] [--route=<route_id>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --page=<page>            Page index; contacts start at 1, jobs at 0.
    --page_size=<size>       Entries per page.
    --search=<search>        Free text filter.
    --fields=<fields>        Comma separated extra fields to match.
    --on_date=<date>         Day in YYYY-MM-DD.
    --from_date=<date>       First day in YYYY-MM-DD.
    --to_date=<date>         Last day in YYYY-MM-DD.
    --states=<states>        Comma separated states.
    --out=<file>             Output xlsx path.
    --vehicle=<vehicle_id>   Also follow one vehicle.
    --route=<route_id>       Also follow one route of the watched lists.`)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RouteMasterCtlVersion)
	if err != nil {
		panic(err)
	}

	a := newApp(config.Load())
	defer a.Close()

	ctx := context.Background()
	switch {
	case flag(opts, "projects"):
		err = listProjects(ctx, a)
	case flag(opts, "contacts"):
		err = listContacts(ctx, a, opts)
	case flag(opts, "contact"):
		err = showContact(ctx, a, opts)
	case flag(opts, "lookup"):
		err = lookupContacts(ctx, a, opts)
	case flag(opts, "jobs"):
		err = listJobs(ctx, a, opts)
	case flag(opts, "vehicles"):
		err = listVehicles(ctx, a, opts)
	case flag(opts, "routes"):
		err = listRoutes(ctx, a, opts)
	case flag(opts, "places-search"):
		err = searchPlaces(ctx, a, opts)
	case flag(opts, "place-details"):
		err = placeDetails(ctx, a, opts)
	case flag(opts, "export-contacts"):
		err = exportContacts(ctx, a, opts)
	case flag(opts, "export-jobs"):
		err = exportJobs(ctx, a, opts)
	case flag(opts, "watch"):
		err = watch(a, opts)
	}
	if err != nil {
		a.Close()
		Err.Fatalf("%s", err)
	}
}

func flag(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

func str(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return v
}

func intOpt(opts docopt.Opts, key string, def int) (int, error) {
	s := str(opts, key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func dateOpt(opts docopt.Opts, key string) (*time.Time, error) {
	s := str(opts, key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func listOpt(opts docopt.Opts, key string) []string {
	s := str(opts, key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func jobStates(opts docopt.Opts) ([]domain.JobState, error) {
	var states []domain.JobState
	for _, s := range listOpt(opts, "--states") {
		state := domain.JobState(s)
		if !state.Valid() {
			return nil, fmt.Errorf("unknown job state %q", s)
		}
		states = append(states, state)
	}
	return states, nil
}

func jobsFilter(opts docopt.Opts) (store.JobsFilter, error) {
	onDate, err := dateOpt(opts, "--on_date")
	if err != nil {
		return store.JobsFilter{}, err
	}
	states, err := jobStates(opts)
	if err != nil {
		return store.JobsFilter{}, err
	}
	return store.JobsFilter{OnDate: onDate, States: states}, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	Out.Print(string(data))
	return nil
}
