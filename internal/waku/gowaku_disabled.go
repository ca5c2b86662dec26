//go:build !real_waku

package waku

import "log/slog"

func newGoWakuBackend(_ *slog.Logger) goWakuBackend {
	return nil
}
