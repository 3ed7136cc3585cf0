package preflight

import (
	"context"
	"path/filepath"

	"ytmusicdl/internal/config"
)

// Role selects which checks apply.
type Role int

const (
	RoleManager Role = iota
	RoleDownloader
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that matter for role.
func RunAll(ctx context.Context, cfg *config.Config, role Role) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	switch role {
	case RoleManager:
		results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir))
		if cfg.Ledger.Enabled {
			results = append(results, CheckDirectoryAccess("Ledger directory", filepath.Dir(cfg.Ledger.Path)))
		}
	case RoleDownloader:
		results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
		for _, status := range CheckSystemDeps(ctx, cfg) {
			result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
			if status.Available && status.Version != "" {
				result.Detail = status.Version
			}
			results = append(results, result)
		}
		results = append(results, CheckManagerReachable(ctx, cfg.Downloader.ManagerURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
