// Package lifecycle admits client sessions, tracks their disconnects and
// deletes what they own once they can no longer come back.
//
// A session moves from active to recoverable when its connection drops
// without a terminal close. While recoverable its queued jobs are paused and
// a recovery timer keyed by the session id is armed; a reconnect presenting
// that id claims the timer and resumes the session. A terminal close
// (download_finished, or any close after packaging began) instead schedules
// cleanup after the retention window. Cleanup waits for in-flight jobs, then
// deletes the session, its directory and its archive.
package lifecycle
