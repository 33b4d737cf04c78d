package claim

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	logx "solocron/pkg/logx"
)

// Sweep removes claim files left behind by crashed processes: files
// whose encoded due time is older than maxAge and whose lock is
// currently free. Currently-locked files are never touched, whatever
// their age: a held lock means a live owner.
//
// Sweep is best-effort housekeeping, run once at daemon startup. It logs
// and skips anything it cannot handle; it never fails the caller.
func (d *Dir) Sweep(maxAge time.Duration, log logx.Logger) int {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		log.Warn("claim sweep: read directory", logx.String("dir", d.path), logx.Err(err))
		return 0
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		dot := strings.IndexByte(name, '.')
		if dot <= 0 {
			continue
		}
		due, err := strconv.ParseInt(name[:dot], 10, 64)
		if err != nil || due > cutoff {
			continue
		}

		// Probe: only an acquirable lock proves the owner is gone.
		path := filepath.Join(d.path, name)
		fl := flock.New(path)
		ok, err := fl.TryLock()
		if err != nil || !ok {
			_ = fl.Close()
			continue
		}
		if err := fl.Unlock(); err != nil {
			log.Warn("claim sweep: unlock probe", logx.String("path", path), logx.Err(err))
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn("claim sweep: remove", logx.String("path", path), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("swept orphaned claim files", logx.Int("removed", removed), logx.String("dir", d.path))
	}
	return removed
}
