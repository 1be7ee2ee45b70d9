// Package ae200 provides a client for Mitsubishi AE-200 centralized HVAC
// controllers using their WebSocket XML interface (b_xmlproc).
//
// # Basic Usage
//
//	ctx := context.Background()
//	client, err := ae200.NewClient()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	devices, err := ae200.NewController(client, "192.168.1.10").ListDevices(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, dev := range devices {
//	    temp, ok, err := dev.RoomTemperature(ctx)
//	    ...
//	}
//
// # Configuration
//
// The client can be configured using functional options:
//
//	client, err := ae200.NewClient(
//	    ae200.WithTimeout(10*time.Second),
//	    ae200.WithCompression(false),
//	    ae200.WithLogger(slog.Default()),
//	)
//
// # Protocol
//
// Every call opens its own connection to ws://<address>/b_xmlproc/, sends one
// XML packet, optionally reads one reply and closes. There is no session, no
// authentication and no encryption. Keep controllers on an isolated network.
//
// A Device caches the attributes it fetched for DefaultLease; reads after
// that refetch synchronously. Writes update the cache before they are sent.
package ae200
