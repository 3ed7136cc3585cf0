// Package config loads, normalizes, and validates ytmusicdl configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment fallbacks used by
// hosted deployments such as DOWNLOADER_CREATION_KEY, MANAGER_URL and AUTH.
// One Config value carries the knobs for both the manager and the downloader,
// so a single file can describe a whole deployment.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
