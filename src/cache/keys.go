package cache

// Logical invalidation keys for the shared query caches. Handlers
// target these rather than raw storage identifiers.
const (
	Notifications = "notifications"
	Projects      = "projects"
	Users         = "users"
)

// Project returns the key for a single project's cache entry.
func Project(id string) string {
	return "project:" + id
}

// SearchUsers returns the key for a user-search result. The empty
// query form ("search-users:") caches the default user listing.
func SearchUsers(query string) string {
	return "search-users:" + query
}
