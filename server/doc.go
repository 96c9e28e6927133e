// Package server implements a reference server for the ft protocol.
//
// # Overview
//
// The server serves one directory, read-only. For each control connection
// it:
//  1. reads the request token ("-l" or a file name)
//  2. reads the client's data port
//  3. connects back to that port on the client's address
//  4. sends a response code ("dir", "fil", "nof" or "unk") followed by the
//     listing or the file bytes, then closes the data connection
//
// # Getting Started
//
//	driver, err := server.NewFSDriver("/srv/files")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := server.NewServer(":30021", server.WithDriver(driver))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	log.Fatal(s.ListenAndServe())
//
// # Token Framing
//
// The protocol has no framing on the control connection: each token is
// expected to arrive in its own read. Clients and servers that both set a
// token delimiter (see WithTokenDelimiter here and ft.WithTokenDelimiter on
// the client) avoid relying on that.
//
// # Logging
//
// The server logs through log/slog. Each control connection gets a session
// ID that appears in every record; completed transfers are logged at info
// level as "transfer_complete".
package server
