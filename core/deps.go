package core

import "pkt.systems/pslog"

// ServiceDeps captures dependencies for the core service. Backend is required.
type ServiceDeps struct {
	Backend   Backend
	Listings  DataListingRefresher
	EventSink EventSink
	Logger    pslog.Logger
}
