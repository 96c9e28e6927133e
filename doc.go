// Package ft implements the client side of a small two-connection file
// transfer protocol.
//
// # Overview
//
// A session uses two TCP connections:
//   - a control connection the client opens to the server, which carries
//     the request and the number of the client's data port
//   - a data connection the server opens back to the client, which carries
//     a response code followed by the reply payload
//
// The client performs exactly one request per session: either a
// directory listing ("-l") or the contents of one file. There is no
// authentication, no encryption and no resume.
//
// # Wire Format
//
// Tokens are plain text without length prefixes:
//
//	client -> server (control):  "-l" | "<file name>", then "<data port>"
//	server -> client (data):     "dir" | "fil" | "nof" (anything else is "unk")
//	listing payload:             one entry per line, ended by "~done"
//	file payload:                raw bytes until the server closes
//
// # Basic Usage
//
// List the server's directory:
//
//	s, err := ft.NewSession("flip1:30021",
//	    ft.WithDataPort(30020),
//	    ft.WithEntryHandler(func(e ft.DirectoryEntry) {
//	        fmt.Println(e)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := s.Run(context.Background(), ft.ListDirectory{}); err != nil {
//	    log.Fatal(err)
//	}
//
// Fetch a file, asking on the terminal for a new name when the local file
// already exists:
//
//	s, _ := ft.NewSession("flip1:30021",
//	    ft.WithDataPort(30020),
//	    ft.WithNameResolver(ft.StdinResolver(os.Stdin, os.Stdout)),
//	)
//	res, err := s.Run(ctx, ft.FetchFile{Name: "report.txt"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Outcome())
//
// # Error Handling
//
// Each failure class has its own type, so callers can tell them apart with
// errors.As:
//
//	var ce *ft.ConnectError
//	if errors.As(err, &ce) {
//	    fmt.Printf("server %s unreachable\n", ce.Addr)
//	}
//
// The types are ConnectError, BindError, ProtocolError,
// TruncatedListingError and IOError. A "nof" or unknown response code is
// reported through Result, not as an error.
package ft
