package store

// Stores is the set of resource stores an application constructs once at start
// and hands to its views. Each store owns its caches.
type Stores struct {
	Contacts       *ContactsStore
	Jobs           *JobsStore
	Vehicles       *VehiclesStore
	Projects       *ProjectsStore
	Routes         *RoutesStore
	Users          *UsersStore
	Billing        *BillingStore
	Memberships    *MembershipsStore
	Authentication *AuthenticationStore
}

// New builds every store on one backend client.
func New(client Backend, opts Options) *Stores {
	return &Stores{
		Contacts:       NewContactsStore(client, opts),
		Jobs:           NewJobsStore(client, opts),
		Vehicles:       NewVehiclesStore(client, opts),
		Projects:       NewProjectsStore(client, opts),
		Routes:         NewRoutesStore(client, opts),
		Users:          NewUsersStore(client, opts),
		Billing:        NewBillingStore(client, opts),
		Memberships:    NewMembershipsStore(client, opts),
		Authentication: NewAuthenticationStore(client, opts),
	}
}

// Close stops background work of every store.
func (s *Stores) Close() {
	s.Contacts.Close()
	s.Jobs.Close()
	s.Vehicles.Close()
	s.Projects.Close()
	s.Routes.Close()
	s.Users.Close()
	s.Billing.Close()
	s.Memberships.Close()
	s.Authentication.Close()
}
