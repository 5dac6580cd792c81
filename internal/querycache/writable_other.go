//go:build !unix

package querycache

import "os"

func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".writable_*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
