// Package downloader implements the worker process: a websocket client that
// registers with the manager, a supervisor that runs one yt-dlp/ffmpeg
// pipeline at a time, and a small HTTP server that hands each finished file
// to the manager exactly once.
//
// # Pipeline
//
// On download-start the supervisor confirms (or rejects when busy), fetches
// the cover, runs yt-dlp with a duration filter and metadata postprocessor
// arguments, streams its output through a table-driven classifier, muxes
// the cover with ffmpeg and registers the result as a single-use artifact.
//
// # Testing
//
// External tools run behind Executor so tests can replace yt-dlp and ffmpeg
// with fakes that write files and emit canned output.
package downloader
