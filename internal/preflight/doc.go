// Package preflight provides readiness checks for the external binaries,
// filesystem paths and peers ytmusicdl depends on.
//
// These checks run in two contexts:
//   - The manager and downloader call RunAll at start and refuse to run when
//     a required check fails.
//   - The CLI "ytmusicdl deps" command renders the individual results.
package preflight
