package cache

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/vk/matrixci/internal/config"
)

// Key derives the cache key for a job: a digest over the job's axis-value
// identity and the fingerprint of the declaration's lock files as found
// under workdir. A missing lock file contributes only its name, so adding
// or removing one still changes the key.
func Key(workdir, axisID string, c config.Cache) digest.Digest {
	return digest.FromString(axisID + "\n" + fingerprint(workdir, c.LockFiles).String())
}

// fingerprint hashes the lock-file set in a stable order.
func fingerprint(workdir string, lockFiles []string) digest.Digest {
	names := make([]string, len(lockFiles))
	copy(names, lockFiles)
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		buf = append(buf, name...)
		buf = append(buf, 0)
		data, err := os.ReadFile(filepath.Join(workdir, name))
		if err == nil {
			buf = append(buf, data...)
		}
		buf = append(buf, 0)
	}
	return digest.FromBytes(buf)
}
