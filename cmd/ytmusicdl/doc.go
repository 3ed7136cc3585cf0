// Command ytmusicdl runs the manager or a downloader and inspects a running
// manager through its admin API.
//
// Typical use:
//
//	ytmusicdl config init
//	ytmusicdl manager
//	ytmusicdl downloader
//	ytmusicdl status
//	ytmusicdl history --session <id>
package main
