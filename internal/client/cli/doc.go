// Package cli is the command layer of the mediaflow uploader.
//
// It turns positional arguments into one of a few commands and renders their
// outcome:
//   - upload <file>...   upload files (the default when no command is named)
//   - status <session>   show the server side state of an upload session
//   - resume             show the unfinished session of the podcast, if any
//   - abort <session>    discard an upload session
//
// App.Run returns the process exit code.
package cli
