//go:build !unix

package main

func foregroundSignals() (<-chan struct{}, func()) {
	return nil, func() {}
}
