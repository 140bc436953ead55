//go:build !linux

package engine

func setupRealtime(rt RTConfig) error {
	return nil
}
