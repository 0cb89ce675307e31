//go:build !darwin

package main

import "errors"

func importMetal(string) error {
	return errors.New("go-metal import needs macOS")
}
