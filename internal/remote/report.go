package remote

import "log/slog"

// reportPull logs and observes per-key pull outcomes.
func reportPull(fields []Field, observe ResultFunc) {
	for _, f := range fields {
		if f.Err != nil {
			slog.Warn("remote: pull failed", "key", f.Key, "err", f.Err)
		}
		if observe != nil {
			observe(OpPull, f.Key, f.Err)
		}
	}
}

// reportPush logs and observes per-entry push outcomes.
func reportPush(entries []Entry, errs []error, observe ResultFunc) {
	for i, e := range entries {
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		if err != nil {
			slog.Warn("remote: push failed", "key", e.Key, "err", err)
		} else {
			slog.Debug("remote: pushed", "key", e.Key)
		}
		if observe != nil {
			observe(OpPush, e.Key, err)
		}
	}
}
