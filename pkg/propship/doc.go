// Package propship provides an embeddable client and server for replicating
// .properties files.
//
// A [Client] watches a directory. Each newly created file is read, its keys
// are filtered, and the result is sent to a [Server] over TCP, one file per
// connection. The server merges the entries into its store file of the same
// name and acknowledges. On success the client deletes the source file; on
// failure or timeout it moves the file to its failed directory.
//
// # Basic Usage
//
// Run a server:
//
//	srv, err := propship.NewServer(propship.DefaultServerConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
// Run a client:
//
//	cfg := propship.DefaultClientConfig()
//	cfg.MonitoredDir = "/etc/app/outbox"
//	cfg.Filter = `db\..*`
//
//	c, err := propship.NewClient(cfg, propship.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
// # Acknowledgments
//
// The server acknowledges either on the transmission connection
// ([AckModeInline]) or by dialing back to the client's ack listener
// ([AckModePush]). The client's [AckWait] must match: [AckWaitInline] or
// [AckWaitTimed] for inline acks, [AckWaitPush] for pushed ones.
//
// # Lifecycle States
//
// Both Client and Server move through Stopped, Starting, Running, Stopping and
// Crashed. A worker failure such as the monitored directory disappearing moves
// the instance to Crashed; [Client.Err] reports the cause and Start may be
// called again.
package propship
